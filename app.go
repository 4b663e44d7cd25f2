package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/tonimelisma/onedrive-uploader/internal/auth"
	"github.com/tonimelisma/onedrive-uploader/internal/config"
	"github.com/tonimelisma/onedrive-uploader/internal/graph"
	"github.com/tonimelisma/onedrive-uploader/internal/tokenfile"
	"github.com/tonimelisma/onedrive-uploader/internal/tokenstore"
	"github.com/tonimelisma/onedrive-uploader/internal/upload"
)

// Identity of the encryption key in the OS keyring.
const (
	keyringService = "onedrive-uploader"
	keyringUser    = "token-encryption-key"
)

const (
	tcpKeepAlive    = 30 * time.Second
	idleConnTimeout = 90 * time.Second
)

// app is the object graph shared by the commands: token custody, the remote
// client and the token manager.
type app struct {
	cfg    *config.Resolved
	logger *slog.Logger
	store  *tokenstore.Store
	client *graph.Client
	tokens *auth.Manager
}

// newApp wires the token store, remote client and token manager. A nil
// prompter selects one from the config and whether stdin is a terminal.
func newApp(cc *CLIContext, prompter auth.Prompter) (*app, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	store, err := newTokenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := graph.NewClient(graph.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     cfg.Endpoint,
		StorageScope: cfg.StorageScope,
		BaseURL:      cfg.BaseURL,
		UploadPath:   cfg.UploadPath,
		UserAgent:    cfg.UserAgent,
	}, newHTTPClient(cfg), logger)

	if prompter == nil {
		prompter = selectPrompter(cfg, os.Stdin, os.Stderr, logger)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		client: client,
		tokens: auth.NewManager(client, store, prompter, cfg.AccessTokenLifetime, logger),
	}, nil
}

// newTokenStore opens the sealed token files with a key from the configured
// backend.
func newTokenStore(cfg *config.Resolved, logger *slog.Logger) (*tokenstore.Store, error) {
	codec, err := tokenfile.NewCodec(keySource(cfg, logger))
	if err != nil {
		return nil, err
	}

	return tokenstore.New(codec, tokenstore.Paths{
		Access:  cfg.AccessTokenPath(),
		Refresh: cfg.RefreshTokenPath(),
	}, logger), nil
}

func keySource(cfg *config.Resolved, logger *slog.Logger) tokenfile.KeySource {
	ring := tokenfile.KeyringKeySource{Service: keyringService, User: keyringUser}
	file := tokenfile.FileKeySource{Path: cfg.KeyFilePath()}

	switch cfg.KeyBackend {
	case config.KeyBackendKeyring:
		return ring
	case config.KeyBackendFile:
		return file
	default:
		return tokenfile.FallbackKeySource{Primary: ring, Fallback: file, Logger: logger}
	}
}

// newHTTPClient applies the network timeouts. There is no overall request
// timeout: a large chunk on a slow link may legitimately take minutes.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: tcpKeepAlive}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.DataTimeout,
			IdleConnTimeout:       idleConnTimeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

// selectPrompter returns the interactive prompt for the configured mode.
// Paste mode needs a terminal on stdin; without one, authorization fails
// with auth.ErrInteractiveAuthRequired until "login" is run.
func selectPrompter(cfg *config.Resolved, in io.Reader, out io.Writer, logger *slog.Logger) auth.Prompter {
	if cfg.Prompt == config.PromptCallback {
		return &auth.CallbackPrompter{
			RedirectURI: cfg.RedirectURI,
			Out:         out,
			OpenURL:     openBrowser,
			Logger:      logger,
		}
	}

	if !isTerminal(in) {
		logger.Debug("stdin is not a terminal, interactive paste prompt disabled")

		return auth.NoPrompter{}
	}

	return &auth.PastePrompter{In: in, Out: out}
}

// openBrowser launches the platform's URL handler.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return errors.New("unsupported platform")
	}
}

// newOrchestrator builds the upload workers from the resolved config.
func (a *app) newOrchestrator() *upload.Orchestrator {
	return upload.New(a.client, a.tokens, upload.Options{
		SmallUploadThreshold: a.cfg.SmallUploadThreshold,
		ChunkSize:            a.cfg.ChunkSize,
		Conflict:             a.cfg.ConflictBehavior,
		DeleteAfterUpload:    a.cfg.DeleteAfterUpload,
		Workers:              a.cfg.Workers,
		OpenBackoff:          upload.Backoff{MaxAttempts: a.cfg.OpenRetryAttempts, Delay: a.cfg.OpenRetryDelay},
		DeleteBackoff:        upload.Backoff{MaxAttempts: a.cfg.DeleteRetryAttempts, Delay: a.cfg.DeleteRetryDelay},
		Limiter:              upload.NewBandwidthLimiter(a.cfg.BandwidthLimit, a.logger),
	}, a.logger)
}

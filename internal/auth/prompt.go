package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// Prompter obtains an authorization code from a human who has opened authURL.
type Prompter interface {
	PromptCode(ctx context.Context, authURL string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

// PromptCode calls f.
func (f PromptFunc) PromptCode(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}

// PastePrompter prints the authorization URL and reads back either the full
// redirect URL the browser landed on or the bare code.
type PastePrompter struct {
	In  io.Reader
	Out io.Writer
}

// PromptCode implements Prompter.
func (p *PastePrompter) PromptCode(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintf(p.Out, "Authorize this application by visiting:\n\n  %s\n\n", authURL)
	fmt.Fprint(p.Out, "Paste the URL your browser was redirected to (or just the code): ")

	type lineResult struct {
		line string
		err  error
	}

	lineCh := make(chan lineResult, 1)

	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}

		lineCh <- lineResult{line: line, err: err}
	}()

	select {
	case res := <-lineCh:
		if res.err != nil {
			return "", fmt.Errorf("auth: reading authorization response: %w", res.err)
		}

		return ParseCode(res.line)
	case <-ctx.Done():
		return "", fmt.Errorf("auth: authorization prompt canceled: %w", ctx.Err())
	}
}

// ParseCode extracts the authorization code from a pasted redirect URL or
// returns the trimmed input when it is already a bare code. An error
// parameter in the redirect is reported as an error.
func ParseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("auth: empty authorization response")
	}

	if !strings.Contains(input, "code=") && !strings.Contains(input, "error=") {
		return input, nil
	}

	query := input
	if i := strings.IndexByte(input, '?'); i >= 0 {
		query = input[i+1:]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("auth: parsing redirect URL: %w", err)
	}

	return codeFromQuery(values)
}

func codeFromQuery(q url.Values) (string, error) {
	if errParam := q.Get("error"); errParam != "" {
		return "", fmt.Errorf("auth: authorization failed: %s: %s", errParam, q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		return "", errors.New("auth: redirect missing authorization code")
	}

	return code, nil
}

// CallbackPrompter listens on the redirect URI's host and port and captures
// the code from the browser's redirect. The redirect URI must point at a
// local address.
type CallbackPrompter struct {
	RedirectURI string
	Out         io.Writer
	// OpenURL launches a browser. When nil or failing, the URL is printed.
	OpenURL func(string) error
	Logger  *slog.Logger
}

// callbackResult carries the authorization code or error from the handler.
type callbackResult struct {
	code string
	err  error
}

// PromptCode implements Prompter.
func (p *CallbackPrompter) PromptCode(ctx context.Context, authURL string) (string, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	redirect, err := url.Parse(p.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("auth: parsing redirect uri: %w", err)
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, resultCh)
	})

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("auth: binding callback listener on %s: %w", redirect.Host, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			sendResult(resultCh, callbackResult{err: fmt.Errorf("auth: callback server error: %w", serveErr)})
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
			logger.Warn("callback server shutdown error", slog.String("error", shutErr.Error()))
		}
	}()

	logger.Info("callback server listening", slog.String("addr", listener.Addr().String()))

	if p.OpenURL == nil || p.OpenURL(authURL) != nil {
		fmt.Fprintf(p.Out, "Open this URL in your browser:\n%s\n", authURL)
	}

	select {
	case res := <-resultCh:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("auth: browser authorization canceled: %w", ctx.Err())
	}
}

func handleCallback(w http.ResponseWriter, r *http.Request, resultCh chan<- callbackResult) {
	code, err := codeFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: err})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization complete</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	sendResult(resultCh, callbackResult{code: code})
}

// sendResult delivers the first result and drops later ones, so repeated
// browser hits never block the handler.
func sendResult(ch chan<- callbackResult, res callbackResult) {
	select {
	case ch <- res:
	default:
	}
}

// NoPrompter refuses interactive authorization. It is used when no terminal
// is attached.
type NoPrompter struct{}

// PromptCode implements Prompter.
func (NoPrompter) PromptCode(context.Context, string) (string, error) {
	return "", ErrInteractiveAuthRequired
}

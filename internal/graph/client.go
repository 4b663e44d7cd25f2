package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Defaults for the Microsoft Graph personal/business drive API.
const (
	DefaultBaseURL      = "https://graph.microsoft.com/v1.0"
	DefaultUploadPath   = "me/drive/root"
	DefaultStorageScope = "Files.ReadWrite.All"
	defaultUserAgent    = "onedrive-uploader/0.1"
)

// Config describes the application registration and API endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint

	// StorageScope is the drive permission requested alongside
	// openid, profile and offline_access.
	StorageScope string

	// BaseURL is the API root, e.g. https://graph.microsoft.com/v1.0.
	BaseURL string

	// UploadPath is the item path that destination paths are addressed
	// relative to, e.g. me/drive/root.
	UploadPath string

	UserAgent string
}

// Client issues single requests against the remote API. It holds no token
// state: every upload call takes the access token as an argument.
type Client struct {
	cfg        Config
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.StorageScope == "" {
		cfg.StorageScope = DefaultStorageScope
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.UploadPath == "" {
		cfg.UploadPath = DefaultUploadPath
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.UploadPath = strings.Trim(cfg.UploadPath, "/")

	// Client credentials travel in the form body, as the token endpoint
	// expects for confidential web-app registrations.
	endpoint := cfg.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "profile", cfg.StorageScope, "offline_access"},
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// tokenScope is the scope parameter sent to the token endpoint.
func (c *Client) tokenScope() string {
	return c.cfg.StorageScope + " offline_access"
}

// itemURL builds {base}/{uploadPath}:{destinationPath}:/{action}.
func (c *Client) itemURL(destinationPath, action string) string {
	return c.cfg.BaseURL + "/" + c.cfg.UploadPath + ":" + escapePath(destinationPath) + ":/" + action
}

// newRequest creates a request carrying the user agent and a fresh
// client-request-id for correlation with server-side logs.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating %s request: %w", method, err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("client-request-id", uuid.NewString())

	return req, nil
}

// send executes req once and reads the whole response body. Non-2xx
// responses are returned as *StatusError; classify picks the sentinel.
func (c *Client) send(req *http.Request, classify func(int, string) error) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.String("error", err.Error()),
		)

		return nil, nil, fmt.Errorf("graph: %s request failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	if !isSuccess(resp.StatusCode) {
		c.logger.Debug("request returned error status",
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", resp.Header.Get("request-id")),
		)

		return resp, body, newStatusError(resp, body, classify(resp.StatusCode, string(body)))
	}

	if readErr != nil {
		return resp, nil, fmt.Errorf("graph: reading response body: %w", readErr)
	}

	c.logger.Debug("request succeeded",
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.Int("status", resp.StatusCode),
	)

	return resp, body, nil
}

func classifyAPIStatus(code int, _ string) error {
	return classifyStatus(code)
}

// escapePath percent-encodes each segment of a slash-separated drive path
// and guarantees a leading slash.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return "/" + strings.Join(segments, "/")
}

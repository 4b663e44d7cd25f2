package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ChunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// ConflictBehavior is the server-side policy when the destination exists.
type ConflictBehavior string

// Conflict behaviors accepted by the drive API.
const (
	ConflictRename  ConflictBehavior = "rename"
	ConflictFail    ConflictBehavior = "fail"
	ConflictReplace ConflictBehavior = "replace"
)

// ParseConflictBehavior validates s as a conflict behavior. Matching is
// case-insensitive.
func ParseConflictBehavior(s string) (ConflictBehavior, error) {
	switch cb := ConflictBehavior(strings.ToLower(strings.TrimSpace(s))); cb {
	case ConflictRename, ConflictFail, ConflictReplace:
		return cb, nil
	default:
		return "", fmt.Errorf("graph: unknown conflict behavior %q (want rename, fail or replace)", s)
	}
}

// Response is a successful (2xx) upload response.
type Response struct {
	StatusCode int
	Body       []byte
}

// UploadSession is a server-side handle for a multi-chunk transfer.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}

// SmallUpload describes a single-request upload.
type SmallUpload struct {
	Folder      string
	Name        string
	Content     io.Reader
	Size        int64
	ContentType string
	Conflict    ConflictBehavior
}

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior ConflictBehavior `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// JoinPath joins a destination folder and file name with a single slash.
func JoinPath(folder, name string) string {
	return strings.TrimRight(folder, "/") + "/" + name
}

// UploadSmall uploads the whole payload with a single PUT to
// {base}/{uploadPath}:{folder}/{name}:/content. Success is 200 or 201.
func (c *Client) UploadSmall(ctx context.Context, accessToken string, u SmallUpload) (*Response, error) {
	dest := JoinPath(u.Folder, u.Name)

	c.logger.Info("small upload",
		slog.String("destination", dest),
		slog.Int64("size", u.Size),
	)

	target := c.itemURL(dest, "content")
	if u.Conflict != "" {
		target += "?" + url.Values{"@microsoft.graph.conflictBehavior": {string(u.Conflict)}}.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodPut, target, u.Content)
	if err != nil {
		return nil, err
	}

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = u.Size

	resp, body, err := c.send(req, classifyAPIStatus)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// CreateUploadSession opens a resumable upload session for destinationPath.
// The returned session URL is pre-authenticated.
func (c *Client) CreateUploadSession(
	ctx context.Context, accessToken, destinationPath string, conflict ConflictBehavior,
) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("destination", destinationPath),
		slog.String("conflict_behavior", string(conflict)),
	)

	if conflict == "" {
		conflict = ConflictRename
	}

	bodyBytes, err := json.Marshal(createUploadSessionRequest{
		Item: uploadSessionItem{ConflictBehavior: conflict},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.itemURL(destinationPath, "createUploadSession"),
		bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	_, body, err := c.send(req, classifyAPIStatus)
	if err != nil {
		return nil, err
	}

	return c.parseUploadSession(body)
}

// UploadChunk PUTs bytes [from, to] of a total-byte file to the session URL.
// The session URL is pre-authenticated, so no Authorization header is sent.
// Intermediate chunks return 202; the final chunk returns 200 or 201.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader, from, to, total int64,
) (*Response, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("from", from),
		slog.Int64("to", to),
		slog.Int64("total", total),
	)

	if from < 0 || to < from || to >= total {
		return nil, fmt.Errorf("graph: invalid chunk range %d-%d/%d", from, to, total)
	}

	req, err := c.newRequest(ctx, http.MethodPut, session.UploadURL, chunk)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, to, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = to - from + 1

	resp, body, err := c.send(req, classifyAPIStatus)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) parseUploadSession(body []byte) (*UploadSession, error) {
	var usr uploadSessionResponse
	if err := json.Unmarshal(body, &usr); err != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", err)
	}

	if usr.UploadURL == "" {
		return nil, fmt.Errorf("graph: upload session response missing uploadUrl")
	}

	expTime, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
	if parseErr != nil {
		c.logger.Warn("invalid upload session expiration, using zero time",
			slog.String("raw", usr.ExpirationDateTime),
			slog.String("error", parseErr.Error()),
		)
	}

	c.logger.Debug("upload session created", slog.Time("expires", expTime))

	return &UploadSession{UploadURL: usr.UploadURL, ExpirationTime: expTime}, nil
}

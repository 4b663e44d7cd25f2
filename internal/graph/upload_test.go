package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSmall_Success(t *testing.T) {
	content := "simple upload file content"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/me/drive/root:/cloud/upload.txt:/content", r.URL.Path)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "text/plain; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(len(content)), r.ContentLength)
		assert.Equal(t, "rename", r.URL.Query().Get("@microsoft.graph.conflictBehavior"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, content, string(body))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"item-1","name":"upload.txt"}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).UploadSmall(context.Background(), "at-1", SmallUpload{
		Folder:      "/cloud",
		Name:        "upload.txt",
		Content:     strings.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "text/plain; charset=utf-8",
		Conflict:    ConflictRename,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "item-1")
}

func TestUploadSmall_DefaultContentTypeAndNoConflictParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Empty(t, r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).UploadSmall(context.Background(), "at", SmallUpload{
		Folder:  "/",
		Name:    "blob",
		Content: strings.NewReader("x"),
		Size:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadSmall_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"InvalidAuthenticationToken"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).UploadSmall(context.Background(), "stale", SmallUpload{
		Folder: "/cloud", Name: "a.txt", Content: strings.NewReader("a"), Size: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsAuthFailure(err))
}

func TestUploadSmall_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).UploadSmall(context.Background(), "at", SmallUpload{
		Folder: "/cloud", Name: "a.txt", Content: strings.NewReader("a"), Size: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.False(t, IsAuthFailure(err))
}

func TestCreateUploadSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/drive/root:/cloud/big file.bin:/createUploadSession", r.URL.Path)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "replace", body["item"]["@microsoft.graph.conflictBehavior"])

		fmt.Fprint(w, `{"uploadUrl":"https://upload.example.com/session/abc","expirationDateTime":"2026-06-01T12:00:00Z"}`)
	}))
	defer srv.Close()

	sess, err := newTestClient(t, srv.URL).CreateUploadSession(
		context.Background(), "at-1", "/cloud/big file.bin", ConflictReplace)
	require.NoError(t, err)

	assert.Equal(t, "https://upload.example.com/session/abc", sess.UploadURL)
	assert.Equal(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), sess.ExpirationTime)
}

func TestCreateUploadSession_DefaultsToRename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rename", body["item"]["@microsoft.graph.conflictBehavior"])

		fmt.Fprint(w, `{"uploadUrl":"https://upload.example.com/s"}`)
	}))
	defer srv.Close()

	sess, err := newTestClient(t, srv.URL).CreateUploadSession(context.Background(), "at", "/x.bin", "")
	require.NoError(t, err)
	assert.True(t, sess.ExpirationTime.IsZero())
}

func TestCreateUploadSession_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateUploadSession(context.Background(), "at", "/x.bin", ConflictFail)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateUploadSession_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"expirationDateTime":"2026-06-01T12:00:00Z"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateUploadSession(context.Background(), "at", "/x.bin", ConflictRename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing uploadUrl")
}

func TestCreateUploadSession_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{broken`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateUploadSession(context.Background(), "at", "/x.bin", ConflictRename)
	require.Error(t, err)
}

func TestUploadChunk_Intermediate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"), "session URL is pre-authenticated")
		assert.Equal(t, "bytes 0-4/10", r.Header.Get("Content-Range"))
		assert.Equal(t, int64(5), r.ContentLength)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "01234", string(body))

		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"nextExpectedRanges":["5-"]}`)
	}))
	defer srv.Close()

	sess := &UploadSession{UploadURL: srv.URL + "/session"}

	resp, err := newTestClient(t, srv.URL).UploadChunk(context.Background(), sess, strings.NewReader("01234"), 0, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestUploadChunk_Final(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusCreated} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "bytes 5-9/10", r.Header.Get("Content-Range"))
				w.WriteHeader(code)
				fmt.Fprint(w, `{"id":"done"}`)
			}))
			defer srv.Close()

			sess := &UploadSession{UploadURL: srv.URL}

			resp, err := newTestClient(t, srv.URL).UploadChunk(
				context.Background(), sess, strings.NewReader("56789"), 5, 9, 10)
			require.NoError(t, err)
			assert.Equal(t, code, resp.StatusCode)
		})
	}
}

func TestUploadChunk_InvalidRange(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	sess := &UploadSession{UploadURL: "http://unused.invalid"}

	for _, r := range [][3]int64{{-1, 3, 10}, {5, 4, 10}, {0, 10, 10}} {
		_, err := c.UploadChunk(context.Background(), sess, strings.NewReader(""), r[0], r[1], r[2])
		assert.Error(t, err, "range %v", r)
	}
}

func TestUploadChunk_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sess := &UploadSession{UploadURL: srv.URL}

	_, err := newTestClient(t, srv.URL).UploadChunk(context.Background(), sess, strings.NewReader("a"), 0, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
}

func TestParseConflictBehavior(t *testing.T) {
	for in, want := range map[string]ConflictBehavior{
		"rename":  ConflictRename,
		"Replace": ConflictReplace,
		" FAIL ":  ConflictFail,
	} {
		got, err := ParseConflictBehavior(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseConflictBehavior("overwrite")
	assert.Error(t, err)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/cloud/a.txt", JoinPath("/cloud", "a.txt"))
	assert.Equal(t, "/cloud/a.txt", JoinPath("/cloud/", "a.txt"))
	assert.Equal(t, "/a.txt", JoinPath("/", "a.txt"))
	assert.Equal(t, "/a.txt", JoinPath("", "a.txt"))
}

func TestChunkAlignment(t *testing.T) {
	assert.Equal(t, 327680, ChunkAlignment)
}

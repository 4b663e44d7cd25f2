package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tonimelisma/onedrive-uploader/pkg/quickxorhash"
)

// ErrHashMismatch means the server reported content that differs from the
// local file. The source is never deleted after a mismatch.
var ErrHashMismatch = errors.New("upload: remote content hash does not match local file")

// driveItem is the subset of the item returned by a completed upload that
// carries the content hash.
type driveItem struct {
	File *struct {
		Hashes struct {
			QuickXorHash string `json:"quickXorHash"`
		} `json:"hashes"`
	} `json:"file"`
}

// remoteHash extracts file.hashes.quickXorHash from a completed upload
// response. It returns "" when the body carries no hash.
func remoteHash(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var item driveItem
	if err := json.Unmarshal(body, &item); err != nil || item.File == nil {
		return ""
	}

	return item.File.Hashes.QuickXorHash
}

// verify downgrades a successful result when the remote hash disagrees with
// the local content.
func (o *Orchestrator) verify(logger *slog.Logger, f io.ReaderAt, size int64, res Result) Result {
	checked, err := verifyContent(f, size, res.Body)
	if err != nil {
		return Result{Outcome: OutcomeOtherFailure, StatusCode: res.StatusCode, Body: res.Body, Err: err}
	}

	if checked {
		logger.Debug("remote content hash verified")
	}

	return res
}

// verifyContent compares the hash the server reported with the first size
// bytes of f. Responses without a hash are accepted unverified; the bool
// reports whether a comparison took place.
func verifyContent(f io.ReaderAt, size int64, body []byte) (bool, error) {
	want := remoteHash(body)
	if want == "" {
		return false, nil
	}

	h := quickxorhash.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size)); err != nil {
		return false, fmt.Errorf("upload: hashing local file: %w", err)
	}

	if got := quickxorhash.Encode(h.Sum(nil)); got != want {
		return true, fmt.Errorf("%w: local %s, remote %s", ErrHashMismatch, got, want)
	}

	return true, nil
}

package tokenstore

import (
	"errors"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-uploader/internal/tokenfile"
)

// memPersister is an in-memory Persister that counts file operations.
type memPersister struct {
	mu      gosync.Mutex
	files   map[string]string
	mtime   time.Time
	loads   map[string]int
	saves   int
	saveErr error
	loadErr error
}

func newMemPersister() *memPersister {
	return &memPersister{
		files: make(map[string]string),
		loads: make(map[string]int),
		mtime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (m *memPersister) Load(path string) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads[path]++

	if m.loadErr != nil {
		return "", time.Time{}, m.loadErr
	}

	v, ok := m.files[path]
	if !ok {
		return "", time.Time{}, nil
	}

	return v, m.mtime, nil
}

func (m *memPersister) Save(path, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++

	if m.saveErr != nil {
		return m.saveErr
	}

	m.files[path] = value

	return nil
}

func (m *memPersister) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, path)

	return nil
}

func (m *memPersister) loadCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.loads[path]
}

var testPaths = Paths{Access: "/secrets/access-token", Refresh: "/secrets/refresh-token"}

func newTestStore(p Persister) *Store {
	return New(p, testPaths, slog.Default())
}

func TestGet_MissingFileIsAbsent(t *testing.T) {
	s := newTestStore(newMemPersister())

	_, ok := s.Get(KindRefresh)
	assert.False(t, ok)
}

func TestGet_ColdStartReadsFileOnce(t *testing.T) {
	p := newMemPersister()
	p.files[testPaths.Refresh] = "refresh-from-disk"

	s := newTestStore(p)

	for range 3 {
		tok, ok := s.Get(KindRefresh)
		require.True(t, ok)
		assert.Equal(t, "refresh-from-disk", tok.Value)
		assert.Equal(t, KindRefresh, tok.Kind)
		assert.Equal(t, p.mtime, tok.ObtainedAt)
	}

	assert.Equal(t, 1, p.loadCount(testPaths.Refresh))
}

func TestGet_WarmCacheSkipsFile(t *testing.T) {
	p := newMemPersister()
	s := newTestStore(p)

	s.Set(KindAccess, "fresh-access", time.Now().Add(time.Hour))

	tok, ok := s.Get(KindAccess)
	require.True(t, ok)
	assert.Equal(t, "fresh-access", tok.Value)
	assert.Equal(t, 0, p.loadCount(testPaths.Access))
}

func TestSet_WritesThroughToDistinctFiles(t *testing.T) {
	p := newMemPersister()
	s := newTestStore(p)

	s.Set(KindAccess, "a-1", time.Time{})
	s.Set(KindRefresh, "r-1", time.Time{})

	assert.Equal(t, "a-1", p.files[testPaths.Access])
	assert.Equal(t, "r-1", p.files[testPaths.Refresh])

	access, ok := s.Get(KindAccess)
	require.True(t, ok)
	assert.Equal(t, "a-1", access.Value)

	refresh, ok := s.Get(KindRefresh)
	require.True(t, ok)
	assert.Equal(t, "r-1", refresh.Value)
}

func TestSet_PersistFailureKeepsCache(t *testing.T) {
	p := newMemPersister()
	p.saveErr = errors.New("disk full")

	s := newTestStore(p)
	s.Set(KindRefresh, "r-only-in-memory", time.Time{})

	tok, ok := s.Get(KindRefresh)
	require.True(t, ok)
	assert.Equal(t, "r-only-in-memory", tok.Value)
	assert.Equal(t, 0, p.loadCount(testPaths.Refresh))
}

func TestGet_LoadErrorIsAbsent(t *testing.T) {
	p := newMemPersister()
	p.loadErr = tokenfile.ErrDecrypt

	s := newTestStore(p)
	_, ok := s.Get(KindAccess)
	assert.False(t, ok)
}

func TestSet_ConcurrentLastWriterWins(t *testing.T) {
	p := newMemPersister()
	s := newTestStore(p)

	var wg gosync.WaitGroup

	for i := range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			s.Set(KindAccess, string(rune('a'+i)), time.Time{})
		}()
	}

	wg.Wait()

	tok, ok := s.Get(KindAccess)
	require.True(t, ok)
	// The cache and the file agree on whichever writer finished last.
	assert.Equal(t, p.files[testPaths.Access], tok.Value)
	assert.Equal(t, 20, p.saves)
}

func TestDelete(t *testing.T) {
	p := newMemPersister()
	s := newTestStore(p)

	s.Set(KindRefresh, "r", time.Time{})
	require.NoError(t, s.Delete(KindRefresh))

	_, ok := s.Get(KindRefresh)
	assert.False(t, ok)
	assert.NotContains(t, p.files, testPaths.Refresh)
}

func TestGet_JWTExpiryRecovered(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	p := newMemPersister()
	p.files[testPaths.Access] = raw

	tok, ok := newTestStore(p).Get(KindAccess)
	require.True(t, ok)
	require.True(t, tok.HasExpiry())
	assert.True(t, tok.ExpiresAt.Equal(exp))
}

func TestGet_OpaqueAccessTokenHasUnknownExpiry(t *testing.T) {
	p := newMemPersister()
	p.files[testPaths.Access] = "EwBwA8l6BAAU-opaque"

	tok, ok := newTestStore(p).Get(KindAccess)
	require.True(t, ok)
	assert.False(t, tok.HasExpiry())
}

func TestStore_WithRealCodec(t *testing.T) {
	dir := t.TempDir()

	var key [tokenfile.KeySize]byte
	codec := tokenfile.NewCodecWithKey(key)
	paths := Paths{
		Access:  filepath.Join(dir, "secrets", "access-token"),
		Refresh: filepath.Join(dir, "secrets", "refresh-token"),
	}

	New(codec, paths, slog.Default()).Set(KindRefresh, "persisted-refresh", time.Time{})

	// A fresh store simulates a process restart.
	tok, ok := New(codec, paths, slog.Default()).Get(KindRefresh)
	require.True(t, ok)
	assert.Equal(t, "persisted-refresh", tok.Value)

	_, ok = New(codec, paths, slog.Default()).Get(KindAccess)
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "access", KindAccess.String())
	assert.Equal(t, "refresh", KindRefresh.String())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}

// Package tokenstore is the single source of truth for the OAuth2 tokens the
// process currently holds. Tokens are cached in memory and written through to
// encrypted files, one file per token kind.
package tokenstore

import (
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind int

const (
	// KindAccess is a short-lived bearer credential.
	KindAccess Kind = iota
	// KindRefresh is the long-lived credential exchanged for access tokens.
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Token is a cached credential. A zero ExpiresAt means the expiry is unknown.
type Token struct {
	Kind       Kind
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// HasExpiry reports whether the server-issued expiry is known.
func (t Token) HasExpiry() bool {
	return !t.ExpiresAt.IsZero()
}

// Persister reads and writes the raw token files. *tokenfile.Codec is the
// production implementation.
type Persister interface {
	Load(path string) (string, time.Time, error)
	Save(path, value string) error
	Remove(path string) error
}

// Paths locates the per-kind token files.
type Paths struct {
	Access  string
	Refresh string
}

func (p Paths) forKind(k Kind) string {
	if k == KindRefresh {
		return p.Refresh
	}

	return p.Access
}

// Store caches tokens in memory, backed by persisted files.
type Store struct {
	persister Persister
	paths     Paths
	logger    *slog.Logger
	nowFunc   func() time.Time

	mu    gosync.RWMutex
	cache map[Kind]Token

	// writeMu serializes Set per kind so file writes land in call order.
	writeMu [2]gosync.Mutex
}

// New creates a Store. Nothing is read from disk until the first Get.
func New(persister Persister, paths Paths, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		persister: persister,
		paths:     paths,
		logger:    logger,
		nowFunc:   time.Now,
		cache:     make(map[Kind]Token, 2),
	}
}

// Get returns the token of the given kind. The cache is consulted first; on a
// miss the persisted file is read and, if present, cached. A missing or
// unreadable file yields (Token{}, false).
func (s *Store) Get(kind Kind) (Token, bool) {
	s.mu.RLock()
	tok, ok := s.cache[kind]
	s.mu.RUnlock()

	if ok {
		return tok, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have populated the cache while we waited.
	if tok, ok := s.cache[kind]; ok {
		return tok, true
	}

	path := s.paths.forKind(kind)

	value, mtime, err := s.persister.Load(path)
	if err != nil {
		s.logger.Warn("failed to load persisted token",
			slog.String("kind", kind.String()),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return Token{}, false
	}

	if value == "" {
		return Token{}, false
	}

	tok = Token{Kind: kind, Value: value, ObtainedAt: mtime}
	if kind == KindAccess {
		tok.ExpiresAt = jwtExpiry(value)
	}

	s.cache[kind] = tok

	s.logger.Debug("loaded persisted token",
		slog.String("kind", kind.String()),
		slog.Bool("expiry_known", tok.HasExpiry()),
	)

	return tok, true
}

// Set stores value as the current token of the given kind, writing through to
// the cache and then the file. A zero expiresAt means unknown. File write
// failures are logged; the cached value stays authoritative for the process.
func (s *Store) Set(kind Kind, value string, expiresAt time.Time) Token {
	s.writeMu[kind].Lock()
	defer s.writeMu[kind].Unlock()

	tok := Token{
		Kind:       kind,
		Value:      value,
		ObtainedAt: s.nowFunc(),
		ExpiresAt:  expiresAt,
	}

	s.mu.Lock()
	s.cache[kind] = tok
	s.mu.Unlock()

	path := s.paths.forKind(kind)
	if err := s.persister.Save(path, value); err != nil {
		s.logger.Error("failed to persist token",
			slog.String("kind", kind.String()),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	return tok
}

// Delete drops the cached token and removes its file.
func (s *Store) Delete(kind Kind) error {
	s.writeMu[kind].Lock()
	defer s.writeMu[kind].Unlock()

	s.mu.Lock()
	delete(s.cache, kind)
	s.mu.Unlock()

	return s.persister.Remove(s.paths.forKind(kind))
}

// jwtExpiry returns the exp claim of a JWT access token, or the zero time for
// opaque tokens. The signature is not verified; the value only drives the
// proactive refresh decision.
func jwtExpiry(raw string) time.Time {
	claims := &jwt.RegisteredClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tradesense/tradesense-go/logger"
)

// persistTimeout bounds one write-through call to the persister
const persistTimeout = 5 * time.Second

// Store holds the credentials of the current session.
// Implementations must be safe for concurrent use; a read must observe the
// latest completed write.
type Store interface {
	// SetTokens replaces both tokens; requests issued after it returns see the new pair
	SetTokens(accessToken, refreshToken string)
	// Tokens returns the current pair, the zero value when never set or cleared
	Tokens() Credentials
	// Clear removes both tokens; calling it on an empty store is a no-op
	Clear()
	// IsAuthenticated reports whether an access token is present
	IsAuthenticated() bool
}

// conditionalClearer is implemented by stores that can clear atomically
// only when they still hold an expected pair.
type conditionalClearer interface {
	ClearIf(expected Credentials) bool
}

// MemoryStore is the in-process Store. Last writer wins.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials

	persister Persister
	persistMu sync.Mutex
	log       logger.Logger

	subMu  sync.Mutex
	subs   map[uint64]func(Credentials)
	nextID uint64
}

// StoreOption configures a MemoryStore
type StoreOption func(*MemoryStore)

// WithPersister writes every change through to p
func WithPersister(p Persister) StoreOption {
	return func(s *MemoryStore) {
		s.persister = p
	}
}

// WithStoreLogger sets the logger used to report persistence failures
func WithStoreLogger(log logger.Logger) StoreOption {
	return func(s *MemoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMemoryStore creates an empty store
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		log:  logger.Nop(),
		subs: make(map[uint64]func(Credentials)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTokens replaces both tokens atomically
func (s *MemoryStore) SetTokens(accessToken, refreshToken string) {
	creds := Credentials{AccessToken: accessToken, RefreshToken: refreshToken}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	s.persist()
	s.notify(creds)
}

// Tokens returns the current pair
func (s *MemoryStore) Tokens() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Clear removes both tokens
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	changed := !s.creds.IsZero()
	s.creds = Credentials{}
	s.mu.Unlock()

	if changed {
		s.persist()
		s.notify(Credentials{})
	}
}

// ClearIf clears the store only while it still holds expected.
// Reports whether it cleared.
func (s *MemoryStore) ClearIf(expected Credentials) bool {
	s.mu.Lock()
	if s.creds.IsZero() || s.creds != expected {
		s.mu.Unlock()
		return false
	}
	s.creds = Credentials{}
	s.mu.Unlock()

	s.persist()
	s.notify(Credentials{})
	return true
}

// IsAuthenticated reports whether an access token is present
func (s *MemoryStore) IsAuthenticated() bool {
	return s.Tokens().IsAuthenticated()
}

// Subscribe registers fn to be called after every change with the new pair.
// The returned function removes the subscription.
func (s *MemoryStore) Subscribe(fn func(Credentials)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Restore loads persisted credentials into memory without writing them back.
// A persister holding nothing leaves the store untouched.
func (s *MemoryStore) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	creds, err := s.persister.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			return nil
		}
		return fmt.Errorf("restore credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	s.notify(creds)
	return nil
}

// persist writes the latest state; serialized so the persisted copy never
// lags behind a newer in-memory write.
func (s *MemoryStore) persist() {
	if s.persister == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	creds := s.Tokens()
	var err error
	if creds.IsZero() {
		err = s.persister.Delete(ctx)
	} else {
		err = s.persister.Save(ctx, creds)
	}
	if err != nil {
		s.log.Warn().Err(err).Bool("authenticated", creds.IsAuthenticated()).Msg("Failed to persist credentials")
	}
}

func (s *MemoryStore) notify(creds Credentials) {
	s.subMu.Lock()
	subs := make([]func(Credentials), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		s.call(fn, creds)
	}
}

func (s *MemoryStore) call(fn func(Credentials), creds Credentials) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Credential subscriber panicked")
		}
	}()
	fn(creds)
}

package origin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Update and Delete for an unknown origin.
var ErrNotFound = errors.New("origin session not found")

// Backend persists sessions. The Store keeps the authoritative in-memory
// copy and writes through to the backend on every mutation.
type Backend interface {
	Load(ctx context.Context) ([]*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, origin string) error
	Close() error
}

// Store holds at most one Session per origin.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	watchMu  sync.RWMutex
	watchers map[uint64]func(Change)
	watchSeq uint64
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore loads every persisted session from backend.
func NewStore(ctx context.Context, backend Backend, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:  backend,
		logger:   logger.Named("origin_store"),
		now:      time.Now,
		sessions: make(map[string]*Session),
		watchers: make(map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load origin sessions: %w", err)
	}
	for _, sess := range loaded {
		if sess == nil || sess.Origin == "" {
			continue
		}
		s.sessions[sess.Origin] = sess
	}
	s.logger.Info("origin sessions loaded", zap.Int("count", len(s.sessions)))
	return s, nil
}

// GetByOrigin returns a copy of the session for origin.
func (s *Store) GetByOrigin(origin string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[origin]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Create stores a new session for origin. If one already exists the call
// merges fields into it instead of creating a second record.
func (s *Store) Create(ctx context.Context, origin string, fields Fields) (*Session, error) {
	s.mu.Lock()
	if existing, ok := s.sessions[origin]; ok {
		next := existing.Clone()
		Patch{
			SelectedAccount:    &fields.SelectedAccount,
			SelectedChainIDHex: &fields.SelectedChainIDHex,
		}.apply(next)
		next.UpdatedAt = s.now()
		err := s.persistLocked(ctx, next)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		s.notify(Change{Kind: Updated, Origin: origin, Session: next.Clone()})
		return next.Clone(), nil
	}

	now := s.now()
	sess := &Session{
		Origin:             origin,
		SelectedAccount:    fields.SelectedAccount,
		SelectedChainIDHex: fields.SelectedChainIDHex,
		OnlineAt:           now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := s.persistLocked(ctx, sess)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("origin session created", zap.String("origin", origin))
	s.notify(Change{Kind: Created, Origin: origin, Session: sess.Clone()})
	return sess.Clone(), nil
}

// Update merges patch into the session for origin and persists it before
// returning.
func (s *Store) Update(ctx context.Context, origin string, patch Patch) (*Session, error) {
	s.mu.Lock()
	existing, ok := s.sessions[origin]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", origin, ErrNotFound)
	}
	next := existing.Clone()
	patch.apply(next)
	next.UpdatedAt = s.now()
	err := s.persistLocked(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.notify(Change{Kind: Updated, Origin: origin, Session: next.Clone()})
	return next.Clone(), nil
}

// Delete removes the session for origin. This is the external "clear site
// data" operation; nothing in the provider path deletes sessions.
func (s *Store) Delete(ctx context.Context, origin string) error {
	s.mu.Lock()
	if _, ok := s.sessions[origin]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", origin, ErrNotFound)
	}
	if err := s.backend.Delete(ctx, origin); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to delete origin session: %w", err)
	}
	delete(s.sessions, origin)
	s.mu.Unlock()

	s.logger.Info("origin session deleted", zap.String("origin", origin))
	s.notify(Change{Kind: Deleted, Origin: origin})
	return nil
}

// List returns copies of all sessions ordered by origin.
func (s *Store) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Watch registers fn for every persisted change. The returned function
// unregisters it. fn runs on the writer's goroutine after the store lock
// is released, so it may call back into the store.
func (s *Store) Watch(fn func(Change)) (cancel func()) {
	s.watchMu.Lock()
	s.watchSeq++
	key := s.watchSeq
	s.watchers[key] = fn
	s.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, key)
			s.watchMu.Unlock()
		})
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// persistLocked writes through to the backend, then updates the cache.
// Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context, sess *Session) error {
	if err := s.backend.Save(ctx, sess); err != nil {
		s.logger.Error("failed to persist origin session",
			zap.String("origin", sess.Origin), zap.Error(err))
		return fmt.Errorf("failed to persist origin session: %w", err)
	}
	s.sessions[sess.Origin] = sess
	return nil
}

func (s *Store) notify(change Change) {
	s.watchMu.RLock()
	fns := make([]func(Change), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

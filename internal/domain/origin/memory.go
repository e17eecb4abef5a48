package origin

import (
	"context"
	"sync"
)

// MemoryBackend keeps sessions for the lifetime of the process only.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]Session
}

// NewMemoryBackend creates an empty in-memory backend, optionally seeded.
func NewMemoryBackend(seed ...*Session) *MemoryBackend {
	b := &MemoryBackend{data: make(map[string]Session, len(seed))}
	for _, s := range seed {
		b.data[s.Origin] = *s
	}
	return b
}

func (b *MemoryBackend) Load(ctx context.Context) ([]*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Session, 0, len(b.data))
	for _, s := range b.data {
		s := s
		out = append(out, &s)
	}
	return out, nil
}

func (b *MemoryBackend) Save(ctx context.Context, s *Session) error {
	b.mu.Lock()
	b.data[s.Origin] = *s
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, origin string) error {
	b.mu.Lock()
	delete(b.data, origin)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

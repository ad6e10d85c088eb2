package persist

import (
	"context"
	"sync"
)

// MemoryBackend keeps slots in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{slots: make(map[string][]byte)}
}

func (b *MemoryBackend) Name() string { return BackendMemory }
func (b *MemoryBackend) Close() error { return nil }

func (b *MemoryBackend) Slot(name string) Slot {
	return &memorySlot{backend: b, name: name}
}

type memorySlot struct {
	backend *MemoryBackend
	name    string
}

func (s *memorySlot) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	data, ok := s.backend.slots[s.name]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), data...), nil
}

func (s *memorySlot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.slots[s.name] = append([]byte(nil), data...)
	return nil
}

func (s *memorySlot) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	delete(s.backend.slots, s.name)
	return nil
}

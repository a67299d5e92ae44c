package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/absmach/hubnspoke/pkg/atomicfile"
	"github.com/absmach/hubnspoke/pkg/payload"
)

// Store keeps the global checkpoint in a single file.
type Store struct {
	path string
	mu   sync.RWMutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a checkpoint has ever been saved.
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path)

	return err == nil
}

// Load returns nil and no error when no checkpoint has been saved yet.
func (s *Store) Load(_ context.Context) (*Checkpoint, error) {
	data, err := s.ReadRaw()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var cpt Checkpoint
	if err := payload.Decode(data, &cpt); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", s.path, err)
	}

	return &cpt, nil
}

// ReadRaw returns the encoded checkpoint file, or nil if there is none.
func (s *Store) ReadRaw() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	return data, nil
}

func (s *Store) Save(_ context.Context, cpt Checkpoint) error {
	if err := cpt.Weights.Validate(); err != nil {
		return err
	}

	data, err := payload.Encode(cpt)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	return nil
}

package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store"
)

// EvidenceStore is an in-memory archive. It is intended for tests and dev
// environments.
type EvidenceStore struct {
	mu   sync.RWMutex
	runs map[string][]store.ArchivedEvent
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{runs: make(map[string][]store.ArchivedEvent)}
}

func (s *EvidenceStore) AppendEvents(_ context.Context, events []store.ArchivedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		run := s.runs[ev.RunID]
		i, found := slices.BinarySearchFunc(run, ev.Seq, func(a store.ArchivedEvent, seq int64) int {
			return int(a.Seq - seq)
		})
		if found {
			continue
		}
		s.runs[ev.RunID] = slices.Insert(run, i, ev)
	}
	return nil
}

func (s *EvidenceStore) LastSeq(_ context.Context, runID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := s.runs[runID]
	if len(run) == 0 {
		return 0, nil
	}
	return run[len(run)-1].Seq, nil
}

func (s *EvidenceStore) ListEvents(_ context.Context, runID string) ([]store.ArchivedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.runs[runID]), nil
}

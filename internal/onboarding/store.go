package onboarding

import (
	"context"
	"sync"
	"time"
)

// StepRecord is the stored output of one completed step. A missing record
// means the step is not complete.
type StepRecord struct {
	Step      int               `json:"step"`
	Key       string            `json:"key"`
	Fields    map[string]string `json:"fields"`
	Complete  bool              `json:"complete"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// StepStore keeps step output per registration attempt. Put overwrites the
// record for a step; nothing is ever shared between attempts.
type StepStore interface {
	Put(ctx context.Context, attemptID string, rec StepRecord) error
	Get(ctx context.Context, attemptID string, step int) (StepRecord, bool, error)
	All(ctx context.Context, attemptID string) (map[int]StepRecord, error)
	Clear(ctx context.Context, attemptID string) error
}

type MemoryStepStore struct {
	mu       sync.RWMutex
	attempts map[string]map[int]StepRecord
}

func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{attempts: map[string]map[int]StepRecord{}}
}

func copyRecord(rec StepRecord) StepRecord {
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	rec.Fields = fields
	return rec
}

func (s *MemoryStepStore) Put(_ context.Context, attemptID string, rec StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.attempts[attemptID]
	if !ok {
		recs = map[int]StepRecord{}
		s.attempts[attemptID] = recs
	}
	recs[rec.Step] = copyRecord(rec)
	return nil
}

func (s *MemoryStepStore) Get(_ context.Context, attemptID string, step int) (StepRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attempts[attemptID][step]
	if !ok {
		return StepRecord{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (s *MemoryStepStore) All(_ context.Context, attemptID string) (map[int]StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]StepRecord, len(s.attempts[attemptID]))
	for n, rec := range s.attempts[attemptID] {
		out[n] = copyRecord(rec)
	}
	return out, nil
}

func (s *MemoryStepStore) Clear(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, attemptID)
	return nil
}

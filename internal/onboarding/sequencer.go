package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-onboarding/internal/artifacts"
	"lv-onboarding/internal/auth"
	"lv-onboarding/internal/identity"
	"lv-onboarding/internal/metrics"
	"lv-onboarding/internal/notify"

	"go.uber.org/zap"
)

// View is what a client needs to render one step.
type View struct {
	Step     int               `json:"step"`
	Key      string            `json:"key"`
	Path     string            `json:"path"`
	Fields   map[string]string `json:"fields"`
	Complete bool              `json:"complete"`
}

// Outcome is the result of an accepted submission.
type Outcome struct {
	Step       int    `json:"step"`
	IdentityID string `json:"-"`
	Next       int    `json:"next_step"`
	NextPath   string `json:"next"`
}

type StepStatus struct {
	Step     int    `json:"step"`
	Key      string `json:"key"`
	Path     string `json:"path"`
	Complete bool   `json:"complete"`
}

type Progress struct {
	Current     int          `json:"current_step"`
	CurrentPath string       `json:"current"`
	Ready       bool         `json:"ready"`
	Steps       []StepStatus `json:"steps"`
}

type Sequencer struct {
	store      StepStore
	identities identity.Store
	artifacts  artifacts.Store
	notifier   *notify.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewSequencer(store StepStore, identities identity.Store, files artifacts.Store, notifier *notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		store:      store,
		identities: identities,
		artifacts:  files,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Sequencer) records(ctx context.Context, attemptID string) (map[int]StepRecord, error) {
	if attemptID == "" {
		return map[int]StepRecord{}, nil
	}
	return s.store.All(ctx, attemptID)
}

// lowestIncomplete returns the first step below upTo without a complete
// record, or 0 if all of them are complete.
func lowestIncomplete(recs map[int]StepRecord, upTo int) int {
	for n := 1; n < upTo && n <= StepCount; n++ {
		if rec, ok := recs[n]; !ok || !rec.Complete {
			return n
		}
	}
	return 0
}

func publicFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == FieldIdentityID {
			continue
		}
		out[k] = v
	}
	return out
}

// Enter returns the stored view of step n, or a *RedirectError when an
// earlier step is incomplete.
func (s *Sequencer) Enter(ctx context.Context, attemptID string, n int) (View, error) {
	step, ok := StepByNumber(n)
	if !ok {
		return View{}, ErrUnknownStep
	}
	recs, err := s.records(ctx, attemptID)
	if err != nil {
		return View{}, err
	}
	if missing := lowestIncomplete(recs, n); missing != 0 {
		return View{}, redirectTo(missing)
	}
	view := View{Step: n, Key: step.Key, Path: step.Path(), Fields: map[string]string{}}
	if rec, ok := recs[n]; ok {
		view.Fields = publicFields(rec.Fields)
		view.Complete = rec.Complete
	}
	return view, nil
}

// Submit validates and stores step n. Validation failures come back as
// *ValidationError with nothing stored.
func (s *Sequencer) Submit(ctx context.Context, attemptID string, n int, in StepInput) (Outcome, error) {
	step, ok := StepByNumber(n)
	if !ok {
		return Outcome{}, ErrUnknownStep
	}
	if attemptID == "" {
		if n == 1 {
			return Outcome{}, ErrAttemptRequired
		}
		return Outcome{}, redirectTo(1)
	}
	recs, err := s.store.All(ctx, attemptID)
	if err != nil {
		return Outcome{}, err
	}
	if missing := lowestIncomplete(recs, n); missing != 0 {
		return Outcome{}, redirectTo(missing)
	}

	accepted, verr := Validate(step, in, s.now())
	if verr != nil {
		s.metrics.StepSubmitted(n, "invalid")
		return Outcome{}, verr
	}

	var identityID string
	if n == 1 {
		identityID, err = s.saveAccount(ctx, recs, accepted)
	} else {
		identityID = recs[1].Fields[FieldIdentityID]
		err = s.saveProfile(ctx, identityID, step, accepted)
	}
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.metrics.StepSubmitted(n, "invalid")
		} else {
			s.metrics.StepSubmitted(n, "error")
		}
		return Outcome{}, err
	}

	rec := StepRecord{
		Step:      n,
		Key:       step.Key,
		Fields:    accepted.Fields,
		Complete:  true,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Put(ctx, attemptID, rec); err != nil {
		s.metrics.StepSubmitted(n, "error")
		return Outcome{}, fmt.Errorf("store step %d: %w", n, err)
	}
	s.metrics.StepSubmitted(n, "accepted")
	return Outcome{Step: n, IdentityID: identityID, Next: n + 1, NextPath: PathFor(n + 1)}, nil
}

// saveAccount creates the identity on the first submission of step 1 and
// updates the same identity on later ones.
func (s *Sequencer) saveAccount(ctx context.Context, recs map[int]StepRecord, accepted Accepted) (string, error) {
	email := accepted.Fields[FieldEmail]
	hash, err := auth.HashPassword(accepted.Password)
	if err != nil {
		return "", err
	}

	identityID := recs[1].Fields[FieldIdentityID]
	if identityID != "" {
		err = s.identities.SetCredentials(ctx, identityID, email, hash)
	} else {
		identityID, err = s.identities.Create(ctx, email, hash)
	}
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return "", &ValidationError{Fields: map[string]string{FieldEmail: err.Error()}}
	case errors.Is(err, identity.ErrNotPending):
		return "", ErrAlreadyCompleted
	case err != nil:
		return "", fmt.Errorf("save identity: %w", err)
	}

	if recs[1].Fields[FieldIdentityID] == "" {
		s.logger.Info("registration started", zap.String("identity_id", identityID))
		s.notifier.RegistrationStarted(email)
	}
	accepted.Fields[FieldIdentityID] = identityID
	return identityID, nil
}

// saveProfile replaces every profile key the step owns. Keys left out of the
// submission are sent empty so the store unsets them.
func (s *Sequencer) saveProfile(ctx context.Context, identityID string, step Step, accepted Accepted) error {
	if identityID == "" {
		return redirectTo(1)
	}
	for kind, f := range accepted.Files {
		ref, err := s.artifacts.Store(ctx, identityID, kind, f)
		if err != nil {
			return fmt.Errorf("store %s: %w", kind, err)
		}
		accepted.Fields[RefField(kind)] = ref
	}
	patch := make(map[string]string, len(step.Fields)+len(step.Artifacts))
	for _, key := range step.Fields {
		patch[key] = accepted.Fields[key]
	}
	for _, kind := range step.Artifacts {
		patch[RefField(kind)] = accepted.Fields[RefField(kind)]
	}
	err := s.identities.Update(ctx, identityID, patch)
	switch {
	case errors.Is(err, identity.ErrNotPending):
		return ErrAlreadyCompleted
	case errors.Is(err, identity.ErrNotFound):
		return redirectTo(1)
	case err != nil:
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// Back moves from step n to n-1 without validating anything. n may be
// StepCount+1 to leave the final confirmation.
func (s *Sequencer) Back(ctx context.Context, attemptID string, n int) (View, error) {
	if n < 1 || n > StepCount+1 {
		return View{}, ErrUnknownStep
	}
	prev := n - 1
	if prev < 1 {
		prev = 1
	}
	return s.Enter(ctx, attemptID, prev)
}

// Restart clears every step of the attempt and discards the identity it
// created along with its uploaded files, unless that identity is already
// completed.
func (s *Sequencer) Restart(ctx context.Context, attemptID string) error {
	if attemptID == "" {
		return nil
	}
	rec, ok, err := s.store.Get(ctx, attemptID, 1)
	if err != nil {
		return err
	}
	if ok {
		if id := rec.Fields[FieldIdentityID]; id != "" {
			err := s.identities.Discard(ctx, id)
			switch {
			case err == nil, errors.Is(err, identity.ErrNotFound):
				if err := s.artifacts.Delete(ctx, id); err != nil {
					return err
				}
			case errors.Is(err, identity.ErrNotPending):
			default:
				return fmt.Errorf("discard identity: %w", err)
			}
		}
	}
	if err := s.store.Clear(ctx, attemptID); err != nil {
		return err
	}
	s.metrics.Restarted()
	return nil
}

func (s *Sequencer) Progress(ctx context.Context, attemptID string) (Progress, error) {
	recs, err := s.records(ctx, attemptID)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{Steps: make([]StepStatus, 0, StepCount)}
	for _, step := range steps {
		rec, ok := recs[step.Number]
		p.Steps = append(p.Steps, StepStatus{
			Step:     step.Number,
			Key:      step.Key,
			Path:     step.Path(),
			Complete: ok && rec.Complete,
		})
	}
	p.Current = lowestIncomplete(recs, StepCount+1)
	if p.Current == 0 {
		p.Current = StepCount + 1
		p.Ready = true
	}
	p.CurrentPath = PathFor(p.Current)
	return p, nil
}

package onboarding

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/artifacts"
	"lv-onboarding/internal/credentials"
	"lv-onboarding/internal/metrics"
	"lv-onboarding/internal/notify"
	"lv-onboarding/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type sentMail struct {
	to, subject, body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to, subject, body})
	return nil
}

func (s *recordingSender) messages() []sentMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMail(nil), s.sent...)
}

// scriptedGenerator hands out queued candidates, then random ones.
type scriptedGenerator struct {
	mu    sync.Mutex
	queue []accounts.Credential
}

func (g *scriptedGenerator) Candidate() accounts.Credential {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return credentials.RandomGenerator{}.Candidate()
	}
	c := g.queue[0]
	g.queue = g.queue[1:]
	return c
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	steps     *MemoryStepStore
	files     *artifacts.DiskStore
	db        *storage.MemoryStore
	sender    *recordingSender
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	gen       *scriptedGenerator
	seq       *Sequencer
	completer *Completer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	files, err := artifacts.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	provisioner, err := accounts.NewProvisioner(accounts.Defaults{Leverage: 100, Currency: "USD"})
	require.NoError(t, err)

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		steps:   NewMemoryStepStore(),
		files:   files,
		db:      storage.NewMemoryStore(),
		sender:  &recordingSender{},
		metrics: metrics.New(prometheus.NewRegistry()),
		gen:     &scriptedGenerator{},
	}
	logger := zap.NewNop()
	h.notifier = notify.NewNotifier(h.sender, logger)
	h.seq = NewSequencer(h.steps, h.db, files, h.notifier, h.metrics, logger)
	h.seq.now = func() time.Time { return fixedNow }
	issuer := credentials.NewIssuer(h.gen, h.metrics, logger)
	h.completer = NewCompleter(h.steps, h.db, issuer, provisioner, h.notifier, h.metrics, logger, 5)
	h.completer.now = func() time.Time { return fixedNow }
	return h
}

// withTx swaps the completer's transaction boundary.
func (h *harness) withTx(tx storage.Tx) {
	h.completer.tx = tx
}

func upload(name, mime string) artifacts.Upload {
	return artifacts.Upload{
		FileName: name,
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString([]byte("\x89PNG fake image bytes")),
	}
}

func validInput(n int) StepInput {
	switch n {
	case 1:
		return StepInput{Fields: map[string]string{"email": "ada@example.com", "password": "correct horse"}}
	case 2:
		return StepInput{Fields: map[string]string{
			"first_name":    "Ada",
			"last_name":     "Lovelace",
			"phone":         "5551234567",
			"date_of_birth": "1990-12-10",
			"gender":        "female",
		}}
	case 3:
		return StepInput{Fields: map[string]string{
			"country":      "gb",
			"address_line": "12 St James's Square",
			"city":         "London",
			"postal_code":  "SW1Y 4JH",
		}}
	case 4:
		return StepInput{Fields: map[string]string{
			"bank_name":           "Coutts",
			"account_holder":      "Ada Lovelace",
			"bank_account_number": "GB29NWBK60161331926819",
			"swift_code":          "COUTGB22",
		}}
	case 5:
		return StepInput{
			Fields: map[string]string{"document_type": "passport", "document_number": "P1234567"},
			Files: map[string]artifacts.Upload{
				"document": upload("passport.png", "image/png"),
				"selfie":   upload("selfie.png", "image/png"),
			},
		}
	case 6:
		return StepInput{
			Fields: map[string]string{"accept_terms": "true"},
			Files:  map[string]artifacts.Upload{"signature": upload("signature.png", "image/png")},
		}
	}
	return StepInput{}
}

// completeSteps submits valid input for steps 1..upTo.
func (h *harness) completeSteps(attemptID string, upTo int) {
	h.t.Helper()
	for n := 1; n <= upTo; n++ {
		_, err := h.seq.Submit(h.ctx, attemptID, n, validInput(n))
		require.NoError(h.t, err, "step %d", n)
	}
}

func (h *harness) identityID(attemptID string) string {
	h.t.Helper()
	rec, ok, err := h.steps.Get(h.ctx, attemptID, 1)
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return rec.Fields[FieldIdentityID]
}

package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/repository"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.SanctionEvent
}

func (r *recordingAudit) Record(_ context.Context, event domain.SanctionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Events() []domain.SanctionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SanctionEvent(nil), r.events...)
}

type fakeSessions struct {
	mu         sync.Mutex
	terminated map[string]string
	inactive   map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{terminated: map[string]string{}, inactive: map[string]bool{}}
}

func (f *fakeSessions) Terminate(_ context.Context, username, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated[domain.UserKey(username)] = reason
	return nil
}

func (f *fakeSessions) IsActive(_ context.Context, username, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.UserKey(username)
	_, ended := f.terminated[key]
	return !ended && !f.inactive[key], nil
}

func (f *fakeSessions) reason(username string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.terminated[domain.UserKey(username)]
	return r, ok
}

// stubClassifier flags text containing "politics" and returns a fixed image
// verdict. With ignoreCtx set the image delay runs to completion regardless of
// the context.
type stubClassifier struct {
	image     domain.Verdict
	imageErr  error
	delay     time.Duration
	ignoreCtx bool
}

func (s *stubClassifier) ClassifyText(text string) domain.Verdict {
	if text == "politics" {
		return domain.UnsafeVerdict(domain.CategoryPolitics)
	}
	if text == "damn" {
		return domain.Verdict{Safe: true, Category: domain.CategoryProfanity, Sanitized: "d**n"}
	}
	return domain.Verdict{Safe: true, Category: domain.CategoryNone, Sanitized: text}
}

func (s *stubClassifier) ClassifyImage(ctx context.Context, _ []byte, _ string) (domain.Verdict, error) {
	if s.delay > 0 && s.ignoreCtx {
		time.Sleep(s.delay)
	} else if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.Verdict{}, ctx.Err()
		}
	}
	if s.imageErr != nil {
		return domain.Verdict{}, s.imageErr
	}
	if s.image.Category == "" {
		return domain.SafeVerdict(), nil
	}
	return s.image, nil
}

type harness struct {
	ledger     *Ledger
	limiter    *RateLimiter
	escalator  *Escalator
	admin      *Administrator
	pipeline   *Pipeline
	audit      *recordingAudit
	sessions   *fakeSessions
	classifier *stubClassifier
}

func newHarness(t *testing.T, policy config.FailurePolicy, users ...string) *harness {
	t.Helper()
	h := &harness{
		audit:      &recordingAudit{},
		sessions:   newFakeSessions(),
		classifier: &stubClassifier{},
	}
	h.ledger = NewLedger(repository.NewMemoryUserRepository(), nil)
	for _, name := range users {
		require.NoError(t, h.ledger.Create(context.Background(), &domain.User{Username: name}))
	}

	limiter, err := NewRateLimiter(3, 5*time.Second, 128)
	require.NoError(t, err)
	h.limiter = limiter

	h.escalator = NewEscalator(h.ledger, h.audit, h.sessions, Policy{
		StrikeThreshold: 3,
		ImageTimeout:    5 * time.Minute,
		SpamTimeout:     time.Minute,
	}, nil)
	multiplier := NewMultiplier(1)
	h.admin = NewAdministrator(h.ledger, h.audit, h.sessions, h.limiter, multiplier, nil)
	h.pipeline = NewPipeline(PipelineConfig{
		ClassifierTimeout: time.Second,
		FailurePolicy:     policy,
		BaseReward:        5,
	}, PipelineDeps{
		Classifier: h.classifier,
		Ledger:     h.ledger,
		Limiter:    h.limiter,
		Escalator:  h.escalator,
		Admin:      h.admin,
		Sessions:   h.sessions,
		Multiplier: multiplier,
	})
	return h
}

func userSession(name string) domain.Session {
	return domain.Session{ID: "sess-" + name, Username: name}
}

func ownerSession() domain.Session {
	return domain.Session{ID: "sess-owner", Username: "Brick", Privileged: true}
}

func textAction(text string) domain.Action {
	return domain.Action{Kind: domain.ActionText, Text: text, ChannelID: "general"}
}

func imageAction() domain.Action {
	return domain.Action{Kind: domain.ActionImage, Image: []byte("img"), ContentType: "image/png", ImageRef: "data:image/png;base64,aW1n", ChannelID: "general"}
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wablast/internal/domain"
)

type fakeSession struct {
	mu     sync.Mutex
	ready  atomic.Bool
	inUse  atomic.Bool
	sent   []string
	sendFn func(call int, to, body string) error
	calls  int
}

func newFakeSession(ready bool) *fakeSession {
	s := &fakeSession{}
	s.ready.Store(ready)
	return s
}

func (s *fakeSession) TenantID() string { return "t1" }
func (s *fakeSession) Ready() bool      { return s.ready.Load() }

func (s *fakeSession) Send(ctx context.Context, to, body string) error {
	s.mu.Lock()
	call := s.calls
	s.calls++
	fn := s.sendFn
	s.mu.Unlock()
	if fn != nil {
		if err := fn(call, to, body); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, to)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) BeginDispatch() bool { return s.inUse.CompareAndSwap(false, true) }
func (s *fakeSession) EndDispatch()        { s.inUse.Store(false) }

func (s *fakeSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testEngine() *Engine {
	return &Engine{
		Delay:           0,
		SendTimeout:     time.Second,
		RecipientSuffix: "@c.us",
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	sess := newFakeSession(true)
	sess.sendFn = func(call int, to, body string) error {
		if to == "B@c.us" {
			return errors.New("number not on network")
		}
		return nil
	}

	res, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []domain.SendRecord{
		{Recipient: "A", Outcome: domain.OutcomeSent},
		{Recipient: "B", Outcome: domain.OutcomeFailed, Reason: "number not on network"},
		{Recipient: "C", Outcome: domain.OutcomeSent},
	}
	if len(res.Results) != len(want) {
		t.Fatalf("results = %d entries, want %d", len(res.Results), len(want))
	}
	for i, rec := range res.Results {
		if rec != want[i] {
			t.Fatalf("result[%d] = %+v, want %+v", i, rec, want[i])
		}
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("sent/failed = %d/%d, want 2/1", res.Sent, res.Failed)
	}
}

func TestEmptyRecipients(t *testing.T) {
	sess := newFakeSession(true)

	start := time.Now()
	res, err := testEngine().Dispatch(context.Background(), sess, "hello", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(res.Results) != 0 || res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if sess.sentCount() != 0 {
		t.Fatalf("adapter sends = %d, want 0", sess.sentCount())
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("empty dispatch took %v, expected no delay", elapsed)
	}
}

func TestNotReadyRejectedWithoutSends(t *testing.T) {
	sess := newFakeSession(false)

	_, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A"})
	if !errors.Is(err, domain.ErrSessionNotReady) {
		t.Fatalf("Dispatch err = %v, want ErrSessionNotReady", err)
	}
	if sess.sentCount() != 0 {
		t.Fatalf("adapter sends = %d, want 0", sess.sentCount())
	}
}

func TestDispatchInProgressRejected(t *testing.T) {
	sess := newFakeSession(true)
	if !sess.BeginDispatch() {
		t.Fatalf("claiming dispatch slot failed")
	}

	_, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A"})
	if !errors.Is(err, domain.ErrDispatchInProgress) {
		t.Fatalf("Dispatch err = %v, want ErrDispatchInProgress", err)
	}
}

func TestSessionLostMidJob(t *testing.T) {
	sess := newFakeSession(true)
	sess.sendFn = func(call int, to, body string) error {
		if call == 0 {
			// Adapter drops right after the first delivery.
			sess.ready.Store(false)
		}
		return nil
	}

	res, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 1 || res.Failed != 2 {
		t.Fatalf("sent/failed = %d/%d, want 1/2", res.Sent, res.Failed)
	}
	for _, rec := range res.Results[1:] {
		if rec.Outcome != domain.OutcomeFailed || rec.Reason != domain.ReasonSessionLost {
			t.Fatalf("remaining record = %+v, want failed/session_lost", rec)
		}
	}
}

func TestSendNotReadyMarksRemainingLost(t *testing.T) {
	sess := newFakeSession(true)
	sess.sendFn = func(call int, to, body string) error {
		if call == 1 {
			return domain.ErrSessionNotReady
		}
		return nil
	}

	res, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 1 || res.Failed != 2 {
		t.Fatalf("sent/failed = %d/%d, want 1/2", res.Sent, res.Failed)
	}
	for i, rec := range res.Results[1:] {
		if rec.Reason != domain.ReasonSessionLost {
			t.Fatalf("record[%d] reason = %q, want session_lost", i+1, rec.Reason)
		}
	}
}

func TestTimeoutRecordedAndLoopContinues(t *testing.T) {
	sess := newFakeSession(true)
	sess.sendFn = func(call int, to, body string) error {
		if call == 0 {
			return fmt.Errorf("gateway send: %w", context.DeadlineExceeded)
		}
		return nil
	}

	res, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A", "B"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Results[0].Reason != domain.ReasonTimeout {
		t.Fatalf("record[0] reason = %q, want timeout", res.Results[0].Reason)
	}
	if res.Results[1].Outcome != domain.OutcomeSent {
		t.Fatalf("record[1] = %+v, want sent", res.Results[1])
	}
}

func TestDuplicatesSentIndependently(t *testing.T) {
	sess := newFakeSession(true)

	res, err := testEngine().Dispatch(context.Background(), sess, "hello", []string{"A", "A"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 2 {
		t.Fatalf("sent = %d, want 2", res.Sent)
	}
	if sess.sentCount() != 2 {
		t.Fatalf("adapter sends = %d, want 2", sess.sentCount())
	}
}

func TestInterSendDelaySpacing(t *testing.T) {
	sess := newFakeSession(true)
	e := testEngine()
	e.Delay = 50 * time.Millisecond

	start := time.Now()
	res, err := e.Dispatch(context.Background(), sess, "hello", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 3 {
		t.Fatalf("sent = %d, want 3", res.Sent)
	}
	// Two inter-send gaps, no trailing delay.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("dispatch took %v, want at least 100ms of throttling", elapsed)
	}
}

func TestContextCancelMarksRemaining(t *testing.T) {
	sess := newFakeSession(true)
	e := testEngine()
	e.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	sess.sendFn = func(call int, to, body string) error {
		cancel() // caller gives up after the first send
		return nil
	}

	res, err := e.Dispatch(ctx, sess, "hello", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 1 || res.Failed != 2 {
		t.Fatalf("sent/failed = %d/%d, want 1/2", res.Sent, res.Failed)
	}
	for _, rec := range res.Results[1:] {
		if rec.Reason != domain.ReasonCanceled {
			t.Fatalf("record reason = %q, want canceled", rec.Reason)
		}
	}
}

package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Esja2001/CoopVilcabamba-sub000/gateway"
)

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires every due timer. Timers run without the
// clock lock held, so a firing timer may arm new ones.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type stubGateway struct {
	mu sync.Mutex

	challengeErr error
	verifyErr    error
	receipt      *gateway.Receipt

	issued     int
	verifiedID []string
	verifiedOK []string

	// verifyGate, when set, blocks VerifyAndExecute until closed.
	verifyGate chan struct{}
}

func (g *stubGateway) RequestChallenge(_ context.Context, _ string, _ gateway.TransferKind) (*gateway.OtpChallenge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.challengeErr != nil {
		return nil, g.challengeErr
	}
	g.issued++
	return &gateway.OtpChallenge{ID: fmt.Sprintf("CH-%04d", g.issued), IssuedAt: time.Now()}, nil
}

func (g *stubGateway) VerifyAndExecute(_ context.Context, _, challengeID, code string, _ gateway.PendingTransfer) (*gateway.Receipt, error) {
	g.mu.Lock()
	gate := g.verifyGate
	g.verifiedID = append(g.verifiedID, challengeID)
	g.verifiedOK = append(g.verifiedOK, code)
	err := g.verifyErr
	receipt := g.receipt
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		return receipt, nil
	}
	return &gateway.Receipt{ReferenceNumber: "REF-001", ExecutedAt: time.Now()}, nil
}

func (g *stubGateway) setVerifyErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

func testTransfer() gateway.PendingTransfer {
	return gateway.PendingTransfer{
		Kind:               gateway.KindCooperativeMember,
		SourceAccount:      "420001001234",
		DestinationAccount: "420001005678",
		Amount:             decimal.NewFromFloat(150.25),
		Memo:               "rent",
	}
}

func newTestFlow(gw *stubGateway, clock *fakeClock) *Flow {
	return New(gw, clock, DefaultConfig(), "1710034065", testTransfer())
}

func TestFlowHappyPath(t *testing.T) {
	gw := &stubGateway{}
	clock := newFakeClock()
	f := newTestFlow(gw, clock)

	var states []State
	var outcomes []Outcome
	f.OnState(func(s State) { states = append(states, s) })
	f.OnTerminal(func(o Outcome) { outcomes = append(outcomes, o) })

	require.NoError(t, f.Start(context.Background()))
	assert.Equal(t, StateAwaitingCode, f.State())
	assert.Equal(t, 3, f.RemainingAttempts())

	r, err := f.SubmitCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, r.State)
	require.NotNil(t, r.Outcome)
	assert.Equal(t, OutcomeCommitted, r.Outcome.Kind)
	assert.Equal(t, "REF-001", r.Outcome.Reference)

	require.Len(t, outcomes, 1)
	assert.Equal(t, []State{
		StateRequestingChallenge,
		StateAwaitingCode,
		StateVerifying,
		StateCommitted,
	}, states)
	assert.Equal(t, []string{"CH-0001"}, gw.verifiedID)
}

func TestFlowCodeFormatRejectedLocally(t *testing.T) {
	gw := &stubGateway{}
	f := newTestFlow(gw, newFakeClock())
	require.NoError(t, f.Start(context.Background()))

	for _, code := range []string{"", "12345", "1234567", "12345x", "abcdef"} {
		_, err := f.SubmitCode(context.Background(), code)
		assert.ErrorIs(t, err, ErrCodeFormat, "code %q", code)
	}
	assert.Empty(t, gw.verifiedID, "gateway must not be contacted for malformed codes")
	assert.Equal(t, 3, f.RemainingAttempts())
}

func TestFlowWrongCodeExhaustsAttempts(t *testing.T) {
	gw := &stubGateway{}
	gw.setVerifyErr(&gateway.Error{Kind: gateway.KindWrongCode, Status: "051", Message: "codigo incorrecto"})
	clock := newFakeClock()
	f := newTestFlow(gw, clock)

	require.NoError(t, f.Start(context.Background()))

	r, err := f.SubmitCode(context.Background(), "000001")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCode, r.State)
	assert.Equal(t, gateway.KindWrongCode, r.Rejection)
	assert.Equal(t, 2, r.RemainingAttempts)

	r, err = f.SubmitCode(context.Background(), "000002")
	require.NoError(t, err)
	assert.Equal(t, 1, r.RemainingAttempts)

	// Third wrong code escalates instead of staying interactive.
	r, err = f.SubmitCode(context.Background(), "000003")
	require.NoError(t, err)
	assert.Equal(t, StateEscalatingCancel, r.State)
	assert.Nil(t, r.Outcome)

	// No input is accepted during the dwell.
	_, err = f.SubmitCode(context.Background(), "000004")
	assert.ErrorIs(t, err, ErrInvalidState)

	clock.Advance(5 * time.Second)
	assert.Equal(t, StateCancelled, f.State())
	o, ok := f.Outcome()
	require.True(t, ok)
	assert.Equal(t, OutcomeCancelled, o.Kind)
	assert.Equal(t, ReasonMaxAttempts, o.CancelReason)
}

func TestFlowExpiredCodeGivesFreeResend(t *testing.T) {
	gw := &stubGateway{}
	gw.setVerifyErr(&gateway.Error{Kind: gateway.KindExpiredCode, Status: "052", Message: "codigo caducado"})
	clock := newFakeClock()
	f := newTestFlow(gw, clock)

	require.NoError(t, f.Start(context.Background()))

	r, err := f.SubmitCode(context.Background(), "111111")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCode, r.State)
	assert.Equal(t, gateway.KindExpiredCode, r.Rejection)
	assert.Equal(t, 3, r.RemainingAttempts, "expiry must not consume an attempt")

	// The expired challenge is gone; a submit without a new one is refused.
	_, err = f.SubmitCode(context.Background(), "111111")
	assert.ErrorIs(t, err, ErrNoChallenge)

	// The cooldown does not apply after an invalidated challenge.
	assert.Equal(t, time.Duration(0), f.ResendAvailableIn())
	gw.setVerifyErr(nil)
	r, err = f.RequestResend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCode, r.State)

	r, err = f.SubmitCode(context.Background(), "222222")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, r.State)
	assert.Equal(t, []string{"CH-0001", "CH-0002"}, gw.verifiedID,
		"the second submission must carry the fresh challenge id")
}

func TestFlowResendCooldown(t *testing.T) {
	gw := &stubGateway{}
	clock := newFakeClock()
	f := newTestFlow(gw, clock)
	require.NoError(t, f.Start(context.Background()))

	_, err := f.RequestResend(context.Background())
	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 120*time.Second, cooldown.Remaining)

	clock.Advance(119 * time.Second)
	_, err = f.RequestResend(context.Background())
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, time.Second, cooldown.Remaining)

	clock.Advance(time.Second)
	r, err := f.RequestResend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCode, r.State)
	assert.Equal(t, 2, gw.issued)

	// The fresh challenge restarts the cooldown window.
	assert.Equal(t, 120*time.Second, f.ResendAvailableIn())
}

func TestFlowResendResetsAttempts(t *testing.T) {
	gw := &stubGateway{}
	gw.setVerifyErr(&gateway.Error{Kind: gateway.KindWrongCode, Status: "051"})
	clock := newFakeClock()
	f := newTestFlow(gw, clock)
	require.NoError(t, f.Start(context.Background()))

	_, err := f.SubmitCode(context.Background(), "000001")
	require.NoError(t, err)
	_, err = f.SubmitCode(context.Background(), "000002")
	require.NoError(t, err)
	assert.Equal(t, 1, f.RemainingAttempts())

	clock.Advance(120 * time.Second)
	r, err := f.RequestResend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, r.RemainingAttempts)
}

func TestFlowDeadlineCancelsWithTimeout(t *testing.T) {
	gw := &stubGateway{}
	clock := newFakeClock()
	f := newTestFlow(gw, clock)

	var outcomes []Outcome
	f.OnTerminal(func(o Outcome) { outcomes = append(outcomes, o) })

	require.NoError(t, f.Start(context.Background()))
	clock.Advance(300 * time.Second)

	assert.Equal(t, StateCancelled, f.State())
	require.Len(t, outcomes, 1)
	assert.Equal(t, ReasonTimeout, outcomes[0].CancelReason)

	_, err := f.SubmitCode(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.RequestResend(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, f.Cancel(), ErrInvalidState)
}

func TestFlowEscalationOutlivesDeadline(t *testing.T) {
	gw := &stubGateway{}
	gw.setVerifyErr(&gateway.Error{Kind: gateway.KindUnavailable, Status: "090", Message: "banco no disponible"})
	clock := newFakeClock()
	f := newTestFlow(gw, clock)
	require.NoError(t, f.Start(context.Background()))

	// Escalate just before the 300s deadline would have fired; the
	// communication dwell (another 300s) must supply the final reason.
	clock.Advance(299 * time.Second)
	r, err := f.SubmitCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, StateEscalatingCancel, r.State)

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateEscalatingCancel, f.State(), "deadline must not preempt the escalation")

	clock.Advance(298 * time.Second)
	o, ok := f.Outcome()
	require.True(t, ok)
	assert.Equal(t, ReasonCommunication, o.CancelReason)
}

func TestFlowUserCancel(t *testing.T) {
	gw := &stubGateway{}
	f := newTestFlow(gw, newFakeClock())
	require.NoError(t, f.Start(context.Background()))

	require.NoError(t, f.Cancel())
	o, ok := f.Outcome()
	require.True(t, ok)
	assert.Equal(t, OutcomeCancelled, o.Kind)
	assert.Equal(t, ReasonUser, o.CancelReason)

	assert.ErrorIs(t, f.Cancel(), ErrInvalidState)
}

func TestFlowCancelDiscardsInFlightVerification(t *testing.T) {
	gw := &stubGateway{verifyGate: make(chan struct{})}
	clock := newFakeClock()
	f := newTestFlow(gw, clock)
	require.NoError(t, f.Start(context.Background()))

	done := make(chan *Result, 1)
	go func() {
		r, err := f.SubmitCode(context.Background(), "123456")
		assert.NoError(t, err)
		done <- r
	}()

	require.Eventually(t, func() bool { return f.State() == StateVerifying },
		time.Second, time.Millisecond)

	require.NoError(t, f.Cancel())
	close(gw.verifyGate)

	r := <-done
	assert.Equal(t, StateCancelled, r.State)
	require.NotNil(t, r.Outcome)
	assert.Equal(t, OutcomeCancelled, r.Outcome.Kind, "a late success must not override the cancellation")
	assert.Equal(t, ReasonUser, r.Outcome.CancelReason)
}

func TestFlowBusyWhileVerifying(t *testing.T) {
	gw := &stubGateway{verifyGate: make(chan struct{})}
	f := newTestFlow(gw, newFakeClock())
	require.NoError(t, f.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		_, _ = f.SubmitCode(context.Background(), "123456")
		close(done)
	}()
	require.Eventually(t, func() bool { return f.State() == StateVerifying },
		time.Second, time.Millisecond)

	_, err := f.SubmitCode(context.Background(), "654321")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.RequestResend(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	close(gw.verifyGate)
	<-done
	assert.Equal(t, StateCommitted, f.State())
}

func TestFlowStartFailureIsRestartable(t *testing.T) {
	gw := &stubGateway{challengeErr: &gateway.Error{Kind: gateway.KindUnavailable, Status: "091"}}
	f := newTestFlow(gw, newFakeClock())

	err := f.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, f.State())
	_, ok := f.Outcome()
	assert.False(t, ok, "a failed challenge request must not settle the flow")

	gw.mu.Lock()
	gw.challengeErr = nil
	gw.mu.Unlock()

	require.NoError(t, f.Start(context.Background()))
	assert.Equal(t, StateAwaitingCode, f.State())
	assert.Equal(t, 3, f.RemainingAttempts())
}

func TestFlowStartRejectedOutsideIdle(t *testing.T) {
	gw := &stubGateway{}
	f := newTestFlow(gw, newFakeClock())
	require.NoError(t, f.Start(context.Background()))

	assert.ErrorIs(t, f.Start(context.Background()), ErrInvalidState)
	assert.Equal(t, 1, gw.issued)
}

func TestFlowUnknownRejectionIsTerminal(t *testing.T) {
	gw := &stubGateway{}
	gw.setVerifyErr(errors.New("malformed response envelope"))
	f := newTestFlow(gw, newFakeClock())
	require.NoError(t, f.Start(context.Background()))

	r, err := f.SubmitCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, r.State)
	require.NotNil(t, r.Outcome)
	assert.Equal(t, OutcomeFailed, r.Outcome.Kind)
	assert.Equal(t, gateway.KindUnknown, r.Outcome.ErrorKind)

	// Unlike a failed challenge request, a verification failure settles
	// the flow for good.
	assert.ErrorIs(t, f.Start(context.Background()), ErrInvalidState)
}

func TestFlowInvalidSessionKeepsAttempts(t *testing.T) {
	gw := &stubGateway{}
	gw.setVerifyErr(&gateway.Error{Kind: gateway.KindInvalidSession, Status: "041", Message: "sesion invalida"})
	f := newTestFlow(gw, newFakeClock())
	require.NoError(t, f.Start(context.Background()))

	r, err := f.SubmitCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCode, r.State)
	assert.Equal(t, gateway.KindInvalidSession, r.Rejection)
	assert.Equal(t, 3, r.RemainingAttempts)
	assert.Equal(t, time.Duration(0), f.ResendAvailableIn())
}

func TestFlowSingleTerminalCallback(t *testing.T) {
	gw := &stubGateway{}
	clock := newFakeClock()
	f := newTestFlow(gw, clock)

	calls := 0
	f.OnTerminal(func(Outcome) { calls++ })

	require.NoError(t, f.Start(context.Background()))
	require.NoError(t, f.Cancel())

	// Neither the stale deadline nor a second cancel may settle again.
	clock.Advance(600 * time.Second)
	assert.ErrorIs(t, f.Cancel(), ErrInvalidState)
	assert.Equal(t, 1, calls)
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateCommitted, StateCancelled, StateFailed} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []State{StateIdle, StateRequestingChallenge, StateAwaitingCode, StateVerifying, StateEscalatingCancel} {
		assert.False(t, s.Terminal(), string(s))
	}
}

package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Esja2001/CoopVilcabamba-sub000/gateway"
)

// State is the flow's externally observable phase.
type State string

const (
	StateIdle                State = "idle"
	StateRequestingChallenge State = "requesting_challenge"
	StateAwaitingCode        State = "awaiting_code"
	StateVerifying           State = "verifying"
	StateEscalatingCancel    State = "escalating_cancel"
	StateCommitted           State = "committed"
	StateCancelled           State = "cancelled"
	StateFailed              State = "failed"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled || s == StateFailed
}

// Cancellation reasons.
const (
	ReasonUser          = "user"
	ReasonTimeout       = "timeout"
	ReasonMaxAttempts   = "max_attempts"
	ReasonCommunication = "communication_error"
)

// OutcomeKind discriminates the terminal result of a flow.
type OutcomeKind string

const (
	OutcomeCommitted OutcomeKind = "committed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the single terminal result produced per pending transfer.
type Outcome struct {
	Kind OutcomeKind

	// committed
	Reference  string
	ExecutedAt time.Time

	// cancelled
	CancelReason string

	// failed
	ErrorKind gateway.ErrorKind
	Message   string
}

// Config carries the flow's timing and retry policy. All durations are
// wall-clock single-shot timers.
type Config struct {
	MaxAttempts        int
	Deadline           time.Duration // hard limit from a successful Start to any terminal state
	ResendCooldown     time.Duration // minimum spacing between challenge issuances
	MaxAttemptsDwell   time.Duration // escalating-cancel presentation after attempt exhaustion
	CommunicationDwell time.Duration // escalating-cancel presentation after a transport failure

	// ResetAttemptsOnResend clears the wrong-code counter when a fresh
	// challenge is issued.
	ResetAttemptsOnResend bool
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:           3,
		Deadline:              300 * time.Second,
		ResendCooldown:        120 * time.Second,
		MaxAttemptsDwell:      5 * time.Second,
		CommunicationDwell:    300 * time.Second,
		ResetAttemptsOnResend: true,
	}
}

// Gateway is the slice of the transaction gateway the flow needs.
type Gateway interface {
	RequestChallenge(ctx context.Context, holderID string, kind gateway.TransferKind) (*gateway.OtpChallenge, error)
	VerifyAndExecute(ctx context.Context, holderID, challengeID, code string, t gateway.PendingTransfer) (*gateway.Receipt, error)
}

var (
	// ErrInvalidState rejects a call the current state does not admit,
	// including any call after a terminal outcome.
	ErrInvalidState = errors.New("flow: operation not valid in current state")
	// ErrBusy rejects a call while a gateway request is in flight.
	ErrBusy = errors.New("flow: a gateway call is already in flight")
	// ErrCodeFormat rejects a code that is not exactly 6 digits. The
	// gateway is never contacted.
	ErrCodeFormat = errors.New("flow: otp code must be exactly 6 digits")
	// ErrNoChallenge rejects a code submission after the active challenge
	// was invalidated; the caller must request a resend first.
	ErrNoChallenge = errors.New("flow: no active challenge, request a new code")
)

// CooldownError rejects a resend before the cooldown has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("flow: resend available in %s", e.Remaining.Round(time.Second))
}

// Result reports the flow's position after a gateway-touching call. Gateway
// rejections the flow recovers from locally are surfaced here, not as
// errors: public methods only error on local validation and state misuse.
type Result struct {
	State             State
	RemainingAttempts int

	// Rejection is set when the gateway refused the call but the flow
	// stays live (wrong code, expired code, invalid session).
	Rejection gateway.ErrorKind
	Message   string

	// Outcome is set once the flow is terminal.
	Outcome *Outcome
}

// Flow drives one pending transfer through OTP issuance, user entry,
// verification and execution. A Flow is single-use: exactly one Outcome is
// produced, after which every method returns ErrInvalidState.
type Flow struct {
	mu sync.Mutex

	gw    Gateway
	clock Clock
	cfg   Config

	holderID string
	transfer gateway.PendingTransfer

	state        State
	challenge    *gateway.OtpChallenge
	challengeAt  time.Time
	cooldownFree bool
	attempts     int
	inFlight     bool
	resolved     bool
	outcome      *Outcome

	deadline Timer
	dwell    Timer

	onState    func(State)
	onTerminal func(Outcome)
}

// New builds a flow for one pending transfer. A nil clock selects the
// system clock.
func New(gw Gateway, clock Clock, cfg Config, holderID string, transfer gateway.PendingTransfer) *Flow {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Flow{
		gw:       gw,
		clock:    clock,
		cfg:      cfg,
		holderID: holderID,
		transfer: transfer,
		state:    StateIdle,
	}
}

// OnState registers the state-change observer. Set before Start; the
// callback must not call back into the flow.
func (f *Flow) OnState(fn func(State)) { f.onState = fn }

// OnTerminal registers the terminal-outcome observer. Set before Start.
func (f *Flow) OnTerminal(fn func(Outcome)) { f.onTerminal = fn }

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Outcome returns the terminal outcome, if one has been produced.
func (f *Flow) Outcome() (Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcome == nil {
		return Outcome{}, false
	}
	return *f.outcome, true
}

// RemainingAttempts returns how many wrong codes are still tolerated.
func (f *Flow) RemainingAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.MaxAttempts - f.attempts
}

// ResendAvailableIn returns the time until a resend is accepted; zero when
// a resend is available immediately.
func (f *Flow) ResendAvailableIn() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cooldownFree || f.challenge == nil {
		return 0
	}
	remaining := f.cfg.ResendCooldown - f.clock.Now().Sub(f.challengeAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Transfer returns the pending transfer the flow was built for.
func (f *Flow) Transfer() gateway.PendingTransfer { return f.transfer }

// HolderID returns the holder the flow acts on behalf of.
func (f *Flow) HolderID() string { return f.holderID }

// Start requests the initial OTP challenge. Valid from Idle, and again
// after a failed challenge request (restart is free: it never counts
// against the attempt limit). On success the flow moves to AwaitingCode and
// the hard deadline timer is armed.
func (f *Flow) Start(ctx context.Context) error {
	var events []func()

	f.mu.Lock()
	if f.resolved || (f.state != StateIdle && f.state != StateFailed) {
		f.mu.Unlock()
		return ErrInvalidState
	}
	if f.inFlight {
		f.mu.Unlock()
		return ErrBusy
	}
	f.inFlight = true
	f.setStateLocked(StateRequestingChallenge, &events)
	f.mu.Unlock()
	fire(&events)

	ch, err := f.gw.RequestChallenge(ctx, f.holderID, f.transfer.Kind)

	events = events[:0]
	f.mu.Lock()
	f.inFlight = false
	if f.resolved {
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		// Not terminal: the caller may call Start again.
		f.setStateLocked(StateFailed, &events)
		f.mu.Unlock()
		fire(&events)
		return err
	}

	f.challenge = ch
	f.challengeAt = f.clock.Now()
	f.cooldownFree = false
	f.setStateLocked(StateAwaitingCode, &events)
	f.deadline = f.clock.AfterFunc(f.cfg.Deadline, f.deadlineExpired)
	f.mu.Unlock()
	fire(&events)
	return nil
}

// SubmitCode verifies the entered code and executes the transfer. Valid
// only from AwaitingCode with an active challenge. Gateway rejections the
// flow can recover from are reported in the Result, never as an error.
func (f *Flow) SubmitCode(ctx context.Context, code string) (*Result, error) {
	if !validCode(code) {
		return nil, ErrCodeFormat
	}

	var events []func()

	f.mu.Lock()
	if f.resolved || f.state != StateAwaitingCode {
		f.mu.Unlock()
		return nil, ErrInvalidState
	}
	if f.inFlight {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if f.challenge == nil {
		f.mu.Unlock()
		return nil, ErrNoChallenge
	}
	challengeID := f.challenge.ID
	f.inFlight = true
	f.setStateLocked(StateVerifying, &events)
	f.mu.Unlock()
	fire(&events)

	receipt, err := f.gw.VerifyAndExecute(ctx, f.holderID, challengeID, code, f.transfer)

	events = events[:0]
	f.mu.Lock()
	defer fire(&events)
	defer f.mu.Unlock()
	f.inFlight = false

	if f.resolved {
		// The flow went terminal while the call was in flight (user
		// cancel or deadline); the response is discarded.
		return f.resultLocked(), nil
	}

	if err == nil {
		f.resolveLocked(Outcome{
			Kind:       OutcomeCommitted,
			Reference:  receipt.ReferenceNumber,
			ExecutedAt: receipt.ExecutedAt,
		}, StateCommitted, &events)
		return f.resultLocked(), nil
	}

	kind := gateway.KindOf(err)
	log.Debug().Str("holder", f.holderID).Str("kind", string(kind)).Msg("verify-and-execute rejected")

	switch kind {
	case gateway.KindWrongCode:
		f.attempts++
		if f.attempts >= f.cfg.MaxAttempts {
			f.escalateLocked(ReasonMaxAttempts, f.cfg.MaxAttemptsDwell, &events)
			return f.resultLocked(), nil
		}
		f.setStateLocked(StateAwaitingCode, &events)
		r := f.resultLocked()
		r.Rejection = kind
		r.Message = err.Error()
		return r, nil

	case gateway.KindExpiredCode, gateway.KindInvalidSession:
		// Not counted as a wrong-code attempt; resend is free.
		f.challenge = nil
		f.cooldownFree = true
		f.setStateLocked(StateAwaitingCode, &events)
		r := f.resultLocked()
		r.Rejection = kind
		r.Message = err.Error()
		return r, nil

	case gateway.KindUnavailable:
		// The transfer's effect is ambiguous; never resubmit the same
		// OTP. Route through the cancellation presentation instead.
		f.escalateLocked(ReasonCommunication, f.cfg.CommunicationDwell, &events)
		return f.resultLocked(), nil

	default:
		f.resolveLocked(Outcome{
			Kind:      OutcomeFailed,
			ErrorKind: kind,
			Message:   err.Error(),
		}, StateFailed, &events)
		return f.resultLocked(), nil
	}
}

// RequestResend invalidates the current challenge and requests a fresh one.
// Valid only from AwaitingCode, and only once the cooldown has elapsed
// (immediately if the previous challenge was already invalidated).
func (f *Flow) RequestResend(ctx context.Context) (*Result, error) {
	var events []func()

	f.mu.Lock()
	if f.resolved || f.state != StateAwaitingCode {
		f.mu.Unlock()
		return nil, ErrInvalidState
	}
	if f.inFlight {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if !f.cooldownFree && f.challenge != nil {
		if remaining := f.cfg.ResendCooldown - f.clock.Now().Sub(f.challengeAt); remaining > 0 {
			f.mu.Unlock()
			return nil, &CooldownError{Remaining: remaining}
		}
	}
	// The old challenge must never be submitted again.
	f.challenge = nil
	f.cooldownFree = true
	f.inFlight = true
	f.mu.Unlock()

	ch, err := f.gw.RequestChallenge(ctx, f.holderID, f.transfer.Kind)

	f.mu.Lock()
	defer fire(&events)
	defer f.mu.Unlock()
	f.inFlight = false

	if f.resolved {
		return f.resultLocked(), nil
	}

	if err != nil {
		// Challenge stays invalidated; the holder may retry at once.
		r := f.resultLocked()
		r.Rejection = gateway.KindOf(err)
		r.Message = err.Error()
		return r, nil
	}

	f.challenge = ch
	f.challengeAt = f.clock.Now()
	f.cooldownFree = false
	if f.cfg.ResetAttemptsOnResend {
		f.attempts = 0
	}
	return f.resultLocked(), nil
}

// Cancel abandons the flow on the holder's initiative. Valid from
// AwaitingCode and Verifying; an in-flight verification response is
// discarded when it arrives.
func (f *Flow) Cancel() error {
	var events []func()

	f.mu.Lock()
	if f.resolved || (f.state != StateAwaitingCode && f.state != StateVerifying) {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.resolveLocked(Outcome{Kind: OutcomeCancelled, CancelReason: ReasonUser}, StateCancelled, &events)
	f.mu.Unlock()
	fire(&events)
	return nil
}

func (f *Flow) deadlineExpired() {
	var events []func()

	f.mu.Lock()
	// An escalation in progress keeps its own reason.
	if f.resolved || f.state == StateEscalatingCancel {
		f.mu.Unlock()
		return
	}
	f.resolveLocked(Outcome{Kind: OutcomeCancelled, CancelReason: ReasonTimeout}, StateCancelled, &events)
	f.mu.Unlock()
	fire(&events)
}

// escalateLocked enters the mandatory cancellation presentation. The dwell
// is a fixed UI presentation window; no input is accepted until it resolves.
func (f *Flow) escalateLocked(reason string, dwell time.Duration, events *[]func()) {
	if f.deadline != nil {
		f.deadline.Stop()
		f.deadline = nil
	}
	f.setStateLocked(StateEscalatingCancel, events)
	f.dwell = f.clock.AfterFunc(dwell, func() {
		var ev []func()
		f.mu.Lock()
		if f.resolved || f.state != StateEscalatingCancel {
			f.mu.Unlock()
			return
		}
		f.resolveLocked(Outcome{Kind: OutcomeCancelled, CancelReason: reason}, StateCancelled, &ev)
		f.mu.Unlock()
		fire(&ev)
	})
}

// resolveLocked produces the one terminal outcome and disarms every timer.
func (f *Flow) resolveLocked(o Outcome, s State, events *[]func()) {
	f.resolved = true
	f.outcome = &o
	f.challenge = nil
	if f.deadline != nil {
		f.deadline.Stop()
		f.deadline = nil
	}
	if f.dwell != nil {
		f.dwell.Stop()
		f.dwell = nil
	}
	f.setStateLocked(s, events)
	if f.onTerminal != nil {
		cb := f.onTerminal
		*events = append(*events, func() { cb(o) })
	}
}

func (f *Flow) setStateLocked(s State, events *[]func()) {
	f.state = s
	if f.onState != nil {
		cb := f.onState
		*events = append(*events, func() { cb(s) })
	}
}

func (f *Flow) resultLocked() *Result {
	r := &Result{
		State:             f.state,
		RemainingAttempts: f.cfg.MaxAttempts - f.attempts,
	}
	if f.outcome != nil {
		o := *f.outcome
		r.Outcome = &o
	}
	return r
}

func validCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fire(events *[]func()) {
	for _, fn := range *events {
		fn()
	}
}

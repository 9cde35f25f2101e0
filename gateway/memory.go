package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryClient is an in-process gateway used when no gateway URL is
// configured (local development) and by tests. Every issued challenge
// accepts the fixed OTP code.
type MemoryClient struct {
	mu sync.Mutex

	OTP string // accepted code, defaults to 123456

	holders    map[string]memoryHolder // keyed by document
	positions  map[string][]Position   // keyed by holder id
	movements  map[string][]Movement   // keyed by account id
	challenges map[string]string       // challenge id -> holder id
}

type memoryHolder struct {
	password string
	holder   Holder
}

func NewMemoryClient() *MemoryClient {
	c := &MemoryClient{
		OTP:        "123456",
		holders:    make(map[string]memoryHolder),
		positions:  make(map[string][]Position),
		movements:  make(map[string][]Movement),
		challenges: make(map[string]string),
	}
	c.Register("1710034065", "demo", Holder{ID: "H-0001", FullName: "Socio Demo"})
	c.AddPosition("H-0001", Position{
		AccountID:   "420001001234",
		ProductType: "savings",
		Currency:    "USD",
		Available:   decimal.NewFromFloat(1500.00),
		Ledger:      decimal.NewFromFloat(1500.00),
		Status:      "active",
	})
	return c
}

// Register adds an authenticatable holder.
func (c *MemoryClient) Register(document, password string, h Holder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holders[document] = memoryHolder{password: password, holder: h}
}

// AddPosition attaches an account to a holder.
func (c *MemoryClient) AddPosition(holderID string, p Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[holderID] = append(c.positions[holderID], p)
}

func (c *MemoryClient) Authenticate(_ context.Context, document, password string) (*Holder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mh, ok := c.holders[document]
	if !ok || mh.password != password {
		return nil, &Error{Kind: KindInvalidSession, Status: statusInvalidSession, Message: "invalid credentials"}
	}
	h := mh.holder
	return &h, nil
}

func (c *MemoryClient) ListPositions(_ context.Context, holderID string) ([]Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Position(nil), c.positions[holderID]...), nil
}

func (c *MemoryClient) ListMovements(_ context.Context, _, accountID string, _ MovementQuery) ([]Movement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Movement(nil), c.movements[accountID]...), nil
}

func (c *MemoryClient) CheckFunds(_ context.Context, holderID, accountID string, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.positions[holderID] {
		if p.AccountID != accountID {
			continue
		}
		if p.Available.LessThan(amount) {
			return &Error{Kind: KindInsufficientFunds, Status: statusInsufficientFunds, Message: "insufficient funds"}
		}
		return nil
	}
	return &Error{Kind: KindUnknown, Message: fmt.Sprintf("account %q not found", accountID)}
}

func (c *MemoryClient) RequestChallenge(_ context.Context, holderID string, kind TransferKind) (*OtpChallenge, error) {
	if !kind.Valid() {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("unknown transfer kind %q", kind)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: err.Error()}
	}
	c.challenges[id.String()] = holderID

	return &OtpChallenge{ID: id.String(), IssuedAt: time.Now()}, nil
}

func (c *MemoryClient) VerifyAndExecute(_ context.Context, holderID, challengeID, code string, t PendingTransfer) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.challenges[challengeID]
	if !ok || owner != holderID {
		return nil, &Error{Kind: KindExpiredCode, Status: statusExpiredCode, Message: "challenge expired"}
	}
	if code != c.OTP {
		return nil, &Error{Kind: KindWrongCode, Status: statusWrongCode, Message: "wrong code"}
	}
	delete(c.challenges, challengeID)

	for i, p := range c.positions[holderID] {
		if p.AccountID == t.SourceAccount {
			c.positions[holderID][i].Available = p.Available.Sub(t.Amount)
			c.positions[holderID][i].Ledger = p.Ledger.Sub(t.Amount)
		}
	}

	ref, err := uuid.NewV7()
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: err.Error()}
	}
	return &Receipt{ReferenceNumber: ref.String(), ExecutedAt: time.Now()}, nil
}

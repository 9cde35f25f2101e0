package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransferKind selects the gateway process codes used for a transfer.
type TransferKind string

const (
	KindSameOwner         TransferKind = "same-owner"
	KindCooperativeMember TransferKind = "cooperative-member"
	KindInterbank         TransferKind = "interbank"
)

// Process codes understood by the prctrans gateway.
const (
	ProcAuthenticate = 110
	ProcPositions    = 201
	ProcMovements    = 205
	ProcCheckFunds   = 210

	ProcChallengeSameOwner   = 260
	ProcExecuteSameOwner     = 261
	ProcChallengeCooperative = 270
	ProcExecuteCooperative   = 271
	ProcChallengeInterbank   = 280
	ProcExecuteInterbank     = 281
)

var challengeCodes = map[TransferKind]int{
	KindSameOwner:         ProcChallengeSameOwner,
	KindCooperativeMember: ProcChallengeCooperative,
	KindInterbank:         ProcChallengeInterbank,
}

var executeCodes = map[TransferKind]int{
	KindSameOwner:         ProcExecuteSameOwner,
	KindCooperativeMember: ProcExecuteCooperative,
	KindInterbank:         ProcExecuteInterbank,
}

// Valid reports whether k is a kind the gateway knows process codes for.
func (k TransferKind) Valid() bool {
	_, ok := challengeCodes[k]
	return ok
}

// PendingTransfer is the immutable payload handed to the authorization flow
// once the holder finishes the transfer form.
type PendingTransfer struct {
	Kind               TransferKind
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Memo               string

	// interbank only
	ReceivingBankCode   string
	ReceiverName        string
	ReceiverDocument    string
	ReceiverAccountType string
}

// OtpChallenge is a server-issued one-time-passcode session. The ID (idemsg
// on the wire) must be echoed back verbatim on verification; issuing a new
// challenge invalidates any previous one for the same transfer.
type OtpChallenge struct {
	ID       string
	IssuedAt time.Time
}

// Receipt is returned by a successful verify-and-execute call.
type Receipt struct {
	ReferenceNumber string
	ExecutedAt      time.Time
}

// Position is one product the holder owns (savings, checking, deposit).
type Position struct {
	AccountID   string
	ProductType string
	Currency    string
	Available   decimal.Decimal
	Ledger      decimal.Decimal
	Status      string
}

// Movement is a single booked entry on an account.
type Movement struct {
	ID          string
	BookingDate string // YYYY-MM-DD
	Description string
	Direction   string // CRDT, DBIT
	Amount      decimal.Decimal
	Balance     decimal.Decimal
}

// MovementQuery filters a movement listing.
type MovementQuery struct {
	DateFrom string
	DateTo   string
	Page     int
	PageSize int
}

// Holder is the authenticated identity the gateway resolves on login.
type Holder struct {
	ID       string
	FullName string
}

// Client is the portal's view of the transaction-processing gateway. The
// authorization flow only needs RequestChallenge and VerifyAndExecute; the
// remaining operations back the dashboard endpoints.
type Client interface {
	Authenticate(ctx context.Context, document, password string) (*Holder, error)
	ListPositions(ctx context.Context, holderID string) ([]Position, error)
	ListMovements(ctx context.Context, holderID, accountID string, q MovementQuery) ([]Movement, error)
	CheckFunds(ctx context.Context, holderID, accountID string, amount decimal.Decimal) error

	RequestChallenge(ctx context.Context, holderID string, kind TransferKind) (*OtpChallenge, error)
	VerifyAndExecute(ctx context.Context, holderID, challengeID, code string, t PendingTransfer) (*Receipt, error)
}

// ErrorKind is the machine-readable classification of a gateway failure.
type ErrorKind string

const (
	KindWrongCode         ErrorKind = "wrong_code"
	KindExpiredCode       ErrorKind = "expired_code"
	KindInvalidSession    ErrorKind = "invalid_session"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindUnavailable       ErrorKind = "unavailable"
	KindUnknown           ErrorKind = "unknown"
)

// Gateway status codes. Everything not listed here classifies as unknown.
const (
	statusOK                = "000"
	statusInvalidSession    = "041"
	statusWrongCode         = "051"
	statusExpiredCode       = "052"
	statusInsufficientFunds = "062"
	statusBankUnavailable   = "090"
	statusServiceDown       = "091"
)

var statusKinds = map[string]ErrorKind{
	statusWrongCode:         KindWrongCode,
	statusExpiredCode:       KindExpiredCode,
	statusInvalidSession:    KindInvalidSession,
	statusInsufficientFunds: KindInsufficientFunds,
	statusBankUnavailable:   KindUnavailable,
	statusServiceDown:       KindUnavailable,
}

// Error carries the gateway's status code, its classification and the
// human-readable message from the response envelope.
type Error struct {
	Kind    ErrorKind
	Status  string
	Message string
}

func (e *Error) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("gateway: %s (status %s): %s", e.Kind, e.Status, e.Message)
}

// ClassifyStatus maps a gateway status code to an error kind.
func ClassifyStatus(status string) ErrorKind {
	if k, ok := statusKinds[status]; ok {
		return k
	}
	return KindUnknown
}

// KindOf extracts the classification from err. Transport-level failures
// (timeouts, refused connections) surface as unavailable; anything that is
// not a gateway error at all is unknown.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

package models

import "gorm.io/gorm"

//goland:noinspection ALL
const (
	TKIND_SAME_OWNER  = "same-owner"
	TKIND_COOPERATIVE = "cooperative-member"
	TKIND_INTERBANK   = "interbank"
)

// Transfer journal statuses.
const (
	TSTATUS_COMMITTED = "committed"
	TSTATUS_CANCELLED = "cancelled"
	TSTATUS_FAILED    = "failed"
)

// Transfer is one journal row per resolved authorization flow, committed or
// not.
type Transfer struct {
	gorm.Model

	SessionID uint
	HolderID  string `gorm:"index"`
	FlowID    string `gorm:"index"`

	Kind               string
	SourceAccount      string
	DestinationAccount string
	Amount             string
	Currency           string
	Memo               string

	// interbank only
	ReceivingBankCode   string
	ReceiverName        string
	ReceiverDocument    string
	ReceiverAccountType string

	Status        string // committed, cancelled, failed
	Reference     string
	FailureReason string
}

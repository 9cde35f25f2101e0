package models

import "gorm.io/gorm"

// Beneficiary is a saved transfer destination. Cooperative beneficiaries
// hold an account inside the cooperative; interbank ones carry the
// receiving bank's routing data.
type Beneficiary struct {
	gorm.Model

	HolderID string `gorm:"index"`

	Alias         string
	Kind          string // cooperative-member, interbank
	AccountNumber string
	AccountType   string // savings, checking

	HolderDocument string
	HolderName     string

	// interbank only
	BankCode string
	BankName string
}

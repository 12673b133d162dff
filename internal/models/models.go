package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a wallet that owns DCA plans. The wallet address is the
// canonical identity; the optional Fid links the wallet to a social profile.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Wallet    string         `gorm:"uniqueIndex;not null" json:"wallet"`
	Fid       *int64         `gorm:"uniqueIndex" json:"fid,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Token represents read-mostly token reference data. Addresses are stored
// lowercased so lookups are case-insensitive.
type Token struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Address   string    `gorm:"uniqueIndex;not null" json:"address"`
	Symbol    string    `gorm:"not null" json:"symbol"`
	Name      string    `json:"name"`
	Decimals  int       `gorm:"default:18" json:"decimals"`
	IsWrapped bool      `gorm:"default:false" json:"is_wrapped"` // destination asset uses the native-asset path
	FeeTier   int       `gorm:"default:0" json:"fee_tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plan represents a recurring purchase instruction. Its identity is a
// content-derived hash of (token out, recipient), so client and server agree
// on the identifier before any on-chain transaction exists.
//
// Invariant: at most one plan per (user wallet, token out) is active at a
// time. LastExecutedAt == 0 means the plan has never executed.
type Plan struct {
	PlanHash        string    `gorm:"primaryKey;type:varchar(66)" json:"plan_hash"`
	UserWallet      string    `gorm:"index;not null" json:"user_wallet"`
	TokenOutAddress string    `gorm:"index;not null" json:"token_out_address"`
	Recipient       string    `gorm:"not null" json:"recipient"`
	AmountIn        string    `gorm:"not null" json:"amount_in"` // USDC base units (6 decimals)
	ApprovalAmount  string    `json:"approval_amount"`
	Frequency       int64     `gorm:"not null" json:"frequency"` // seconds between executions
	LastExecutedAt  int64     `gorm:"not null;default:0" json:"last_executed_at"`
	Active          bool      `gorm:"default:true" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	TokenOut Token `gorm:"foreignKey:TokenOutAddress;references:Address" json:"token_out,omitempty"`
}

// Execution is an immutable ledger entry recorded once per successful
// on-chain swap. AmountOut and FeeAmount come from the settlement event, not
// from the pre-trade quote.
type Execution struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TxHash          string    `gorm:"index;not null" json:"tx_hash"`
	PlanHash        string    `gorm:"index;not null;type:varchar(66)" json:"plan_hash"`
	AmountIn        string    `gorm:"not null" json:"amount_in"`
	AmountOut       string    `gorm:"not null" json:"amount_out"`
	FeeAmount       string    `gorm:"not null" json:"fee_amount"`
	TokenOutAddress string    `gorm:"not null" json:"token_out_address"`
	CreatedAt       time.Time `json:"created_at"`

	Plan Plan `gorm:"foreignKey:PlanHash;references:PlanHash" json:"plan,omitempty"`
}

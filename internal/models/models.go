package models

import (
	"time"
)

// RelayAuthorization records a consumed staking authorization (replay protection).
// One row per authorization digest; insertion is insert-if-absent so a digest
// can only ever be consumed once, including across restarts.
type RelayAuthorization struct {
	Digest     string    `json:"digest" gorm:"primaryKey;size:66"` // 0x + 64 hex
	UserAddr   string    `json:"user_addr" gorm:"not null;index;size:42"`
	PoolID     uint64    `json:"pool_id" gorm:"not null"`
	Amount     string    `json:"amount" gorm:"not null;size:78"` // uint256 decimal string
	Deadline   time.Time `json:"deadline" gorm:"not null;index"`
	TxID       string    `json:"tx_id" gorm:"size:36"` // RelayedTransaction ID
	ConsumedAt time.Time `json:"consumed_at" gorm:"not null;index"`
}

// TableName specifies the table name
func (RelayAuthorization) TableName() string {
	return "relay_authorizations"
}

// RelayedTransactionStatus lifecycle of a relayed transaction
type RelayedTransactionStatus string

const (
	RelayedTransactionStatusSubmitted RelayedTransactionStatus = "submitted" // accepted by the network
	RelayedTransactionStatusConfirmed RelayedTransactionStatus = "confirmed" // receipt with status 1
	RelayedTransactionStatusFailed    RelayedTransactionStatus = "failed"    // reverted or dropped
)

// RelayedTransaction tracks a stake transaction submitted by the relayer.
// The synchronous relay contract ends at "submitted"; confirmation is
// updated asynchronously by the receipt checker.
type RelayedTransaction struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"` // UUID
	UserAddr string `json:"user_addr" gorm:"not null;index;size:42"`
	PoolID   uint64 `json:"pool_id" gorm:"not null"`
	Amount   string `json:"amount" gorm:"not null;size:78"`
	Deadline time.Time `json:"deadline" gorm:"not null"`

	Status      RelayedTransactionStatus `json:"status" gorm:"not null;default:submitted;index"`
	TxHash      string                   `json:"tx_hash" gorm:"uniqueIndex;size:66"`
	Nonce       uint64                   `json:"nonce" gorm:"not null"`
	BlockNumber *uint64                  `json:"block_number"`
	GasUsed     uint64                   `json:"gas_used"`
	LastError   string                   `json:"last_error" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

// TableName specifies the table name
func (RelayedTransaction) TableName() string {
	return "relayed_transactions"
}

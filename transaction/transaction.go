package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNonPositiveAmount = errors.New("transaction amount must be greater than zero")
	ErrEmptyChainID      = errors.New("transaction chain id cannot be empty")
	ErrEmptyAsset        = errors.New("transaction asset cannot be empty")
	ErrEmptyEntity       = errors.New("transaction entity address cannot be empty")
)

// Type describes the direction of a fund movement between the vault,
// agent wallets and external addresses.
type Type string

const (
	TypeAgentToAgent    Type = "agent_to_agent"
	TypeVaultToAgent    Type = "vault_to_agent"
	TypeAgentToVault    Type = "agent_to_vault"
	TypeVaultToExternal Type = "vault_to_external"
	TypeCrossChain      Type = "cross_chain"
)

// Status is a transaction lifecycle state. The status field is the single
// source of truth for bucket membership in the vault arena.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// EntityType describes the kind of the party on either side of a transaction.
type EntityType string

const (
	EntityVault    EntityType = "vault"
	EntityAgent    EntityType = "agent"
	EntityExternal EntityType = "external"
)

// Entity is one party of a transaction.
type Entity struct {
	Type    EntityType `json:"type"    bson:"type"`
	ID      string     `json:"id"      bson:"id"`
	Address string     `json:"address" bson:"address"`
}

// Approval is a single recorded approval of an authorized key.
type Approval struct {
	ApproverID string    `json:"approver_id" bson:"approver_id"`
	Notes      string    `json:"notes"       bson:"notes"`
	CreatedAt  time.Time `json:"created_at"  bson:"created_at"`
}

// Rejection records who rejected a transaction, why and when.
type Rejection struct {
	RejectorID string    `json:"rejector_id" bson:"rejector_id"`
	Reason     string    `json:"reason"      bson:"reason"`
	CreatedAt  time.Time `json:"created_at"  bson:"created_at"`
}

// Transaction is a record of a single fund movement with an immutable identity
// and a mutable status and approval lifecycle. RequiredApprovals is fixed at
// creation. TxHash and ExecError are mutually exclusive and both empty until
// execution is attempted.
type Transaction struct {
	ID                primitive.ObjectID `json:"_id"                bson:"_id"`
	Type              Type               `json:"type"               bson:"type"`
	ChainID           string             `json:"chain_id"           bson:"chain_id"`
	Asset             string             `json:"asset"              bson:"asset"`
	Amount            decimal.Decimal    `json:"amount"             bson:"amount"`
	From              Entity             `json:"from"               bson:"from"`
	To                Entity             `json:"to"                 bson:"to"`
	Memo              string             `json:"memo"               bson:"memo"`
	Metadata          map[string]string  `json:"metadata"           bson:"metadata"`
	Status            Status             `json:"status"             bson:"status"`
	StatusReason      string             `json:"status_reason"      bson:"status_reason"`
	Approvals         []Approval         `json:"approvals"          bson:"approvals"`
	RequiredApprovals int                `json:"required_approvals" bson:"required_approvals"`
	TxHash            string             `json:"tx_hash"            bson:"tx_hash"`
	ExecError         string             `json:"exec_error"         bson:"exec_error"`
	Rejection         *Rejection         `json:"rejection"          bson:"rejection"`
	CreatedAt         time.Time          `json:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"         bson:"updated_at"`
	CompletedAt       time.Time          `json:"completed_at"       bson:"completed_at"`
}

// New creates a new pending Transaction or returns an error when the amount is
// not positive or either party is malformed.
func New(
	typ Type, chainID, asset string, amount decimal.Decimal,
	from, to Entity, memo string, metadata map[string]string, requiredApprovals int,
) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if chainID == "" {
		return nil, ErrEmptyChainID
	}
	if asset == "" {
		return nil, ErrEmptyAsset
	}
	if from.Address == "" || to.Address == "" {
		return nil, ErrEmptyEntity
	}
	if requiredApprovals < 1 {
		requiredApprovals = 1
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}
	now := time.Now()
	return &Transaction{
		ID:                primitive.NewObjectID(),
		Type:              typ,
		ChainID:           chainID,
		Asset:             asset,
		Amount:            amount,
		From:              from,
		To:                to,
		Memo:              memo,
		Metadata:          metadata,
		Status:            StatusPending,
		Approvals:         make([]Approval, 0, requiredApprovals),
		RequiredApprovals: requiredApprovals,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// UpdateStatus sets a new status and bumps the updated timestamp. It is always
// legal to call, the caller is responsible for respecting the vault state
// machine. CompletedAt is set when status becomes completed.
func (t *Transaction) UpdateStatus(s Status, reason string) {
	t.Status = s
	t.StatusReason = reason
	t.UpdatedAt = time.Now()
	if s == StatusCompleted {
		t.CompletedAt = t.UpdatedAt
	}
}

// AddApproval appends an approval and bumps the updated timestamp. It performs
// no authorization or threshold check, that is the vault's responsibility.
func (t *Transaction) AddApproval(approverID, notes string) {
	t.Approvals = append(t.Approvals, Approval{
		ApproverID: approverID,
		Notes:      notes,
		CreatedAt:  time.Now(),
	})
	t.UpdatedAt = time.Now()
}

// HasApproved reports whether the given approver already approved this transaction.
func (t *Transaction) HasApproved(approverID string) bool {
	for _, a := range t.Approvals {
		if a.ApproverID == approverID {
			return true
		}
	}
	return false
}

// IsApproved reports whether the collected approvals satisfy the requirement
// fixed at creation.
func (t *Transaction) IsApproved() bool {
	return len(t.Approvals) >= t.RequiredApprovals
}

// Copy returns a deep copy of the transaction safe to hand outside the vault lock.
func (t *Transaction) Copy() Transaction {
	c := *t
	c.Approvals = make([]Approval, len(t.Approvals))
	copy(c.Approvals, t.Approvals)
	c.Metadata = make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	if t.Rejection != nil {
		r := *t.Rejection
		c.Rejection = &r
	}
	return c
}

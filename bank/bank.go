package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aurumlabs/custodia/ledger"
	"github.com/aurumlabs/custodia/logger"
	"github.com/aurumlabs/custodia/transaction"
	"github.com/aurumlabs/custodia/transfer"
	"github.com/aurumlabs/custodia/vault"
	"github.com/aurumlabs/custodia/wallets"
)

var (
	ErrMalformedID  = errors.New("identifier is malformed")
	ErrEmptyKey     = errors.New("key cannot be empty")
	ErrEmptyAgentID = errors.New("agent id cannot be empty")
)

// Bank is the facade over the vault, the ledger, the wallet factory and the
// transfer network. It is stateless beyond holding the references and only
// guards against malformed identifiers before delegating.
type Bank struct {
	vault   *vault.Vault
	ledger  *ledger.Ledger
	wallets *wallets.Factory
	network *transfer.Network
	log     logger.Logger
}

// New wires the four components together. The transfer network is attached to
// the vault as the funding path.
func New(v *vault.Vault, l *ledger.Ledger, f *wallets.Factory, n *transfer.Network, log logger.Logger) *Bank {
	v.UseFunder(n)
	return &Bank{vault: v, ledger: l, wallets: f, network: n, log: log}
}

// CreateTransaction creates a pending transaction in the vault.
func (b *Bank) CreateTransaction(
	ctx context.Context, typ transaction.Type, chainID string,
	from, to transaction.Entity, amount decimal.Decimal, asset, memo string,
	metadata map[string]string,
) (transaction.Transaction, error) {
	return b.vault.CreateTransaction(ctx, typ, chainID, from, to, amount, asset, memo, metadata)
}

// ApproveTransaction approves the transaction with the approver key.
func (b *Bank) ApproveTransaction(ctx context.Context, trxID, approverKey, notes string) (transaction.Transaction, error) {
	if err := validTrxID(trxID); err != nil {
		return transaction.Transaction{}, err
	}
	if approverKey == "" {
		return transaction.Transaction{}, ErrEmptyKey
	}
	return b.vault.ApproveTransaction(ctx, trxID, approverKey, notes)
}

// ExecuteTransaction submits the approved transaction to the chain.
func (b *Bank) ExecuteTransaction(ctx context.Context, trxID string) (transaction.Transaction, error) {
	if err := validTrxID(trxID); err != nil {
		return transaction.Transaction{}, err
	}
	return b.vault.ExecuteTransaction(ctx, trxID)
}

// RejectTransaction rejects the pending or approved transaction.
func (b *Bank) RejectTransaction(ctx context.Context, trxID, rejectorKey, reason string) (transaction.Transaction, error) {
	if err := validTrxID(trxID); err != nil {
		return transaction.Transaction{}, err
	}
	if rejectorKey == "" {
		return transaction.Transaction{}, ErrEmptyKey
	}
	return b.vault.RejectTransaction(ctx, trxID, rejectorKey, reason)
}

// FreezeVault freezes all fund moving operations of the vault.
func (b *Bank) FreezeVault(key, reason string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return b.vault.FreezeVault(key, reason)
}

// UnfreezeVault lifts the emergency freeze.
func (b *Bank) UnfreezeVault(key, reason string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return b.vault.UnfreezeVault(key, reason)
}

// AddAuthorizedKey authorizes a new key, optionally as an emergency contact.
func (b *Bank) AddAuthorizedKey(adminKey, key string, isEmergency bool) error {
	if adminKey == "" || key == "" {
		return ErrEmptyKey
	}
	return b.vault.AddAuthorizedKey(adminKey, key, isEmergency)
}

// RemoveAuthorizedKey removes an authorized key.
func (b *Bank) RemoveAuthorizedKey(adminKey, key string) error {
	if adminKey == "" || key == "" {
		return ErrEmptyKey
	}
	return b.vault.RemoveAuthorizedKey(adminKey, key)
}

// FundAgentWallet funds the agent wallet through the operational fast path.
func (b *Bank) FundAgentWallet(ctx context.Context, adminKey, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transaction.Transaction, error) {
	if adminKey == "" {
		return transaction.Transaction{}, ErrEmptyKey
	}
	if agentID == "" {
		return transaction.Transaction{}, ErrEmptyAgentID
	}
	return b.vault.FundAgentWallet(ctx, adminKey, agentID, chainID, asset, amount, memo)
}

// PendingTransactions lists all transactions awaiting approvals.
func (b *Bank) PendingTransactions() []transaction.Transaction {
	return b.vault.GetPendingTransactions()
}

// Transaction reads the ledger record of a transaction with its full history.
func (b *Bank) Transaction(ctx context.Context, trxID string) (ledger.Record, error) {
	if err := validTrxID(trxID); err != nil {
		return ledger.Record{}, err
	}
	return b.ledger.GetTransaction(ctx, trxID)
}

// RecentTransactions reads up to limit most recently recorded transactions.
func (b *Bank) RecentTransactions(ctx context.Context, limit int) ([]ledger.Record, error) {
	return b.ledger.GetTransactions(ctx, limit)
}

// EntityBalance derives the balance of the entity from the ledger.
func (b *Bank) EntityBalance(ctx context.Context, entityID, chainID, asset string) (map[string]map[string]decimal.Decimal, error) {
	if entityID == "" {
		return nil, ErrEmptyAgentID
	}
	return b.ledger.EntityBalance(ctx, entityID, chainID, asset)
}

// AccountStatement builds the account statement of the entity for the range.
func (b *Bank) AccountStatement(ctx context.Context, entityID string, from, to time.Time) (ledger.Statement, error) {
	if entityID == "" {
		return ledger.Statement{}, ErrEmptyAgentID
	}
	return b.ledger.AccountStatement(ctx, entityID, from, to)
}

// CreateWallet creates an agent wallet from a registered type profile and
// custom overrides.
func (b *Bank) CreateWallet(agentID, name, walletType, purpose string, customPermissions map[string]bool, customLimits map[string]wallets.Limit) (wallets.Wallet, error) {
	return b.wallets.CreateWallet(agentID, name, walletType, purpose, customPermissions, customLimits)
}

// Wallet reads the wallet by id.
func (b *Bank) Wallet(walletID string) (wallets.Wallet, error) {
	if err := validWalletID(walletID); err != nil {
		return wallets.Wallet{}, err
	}
	return b.wallets.GetWallet(walletID)
}

// AgentWallets lists all wallets of the agent.
func (b *Bank) AgentWallets(agentID string) ([]wallets.Wallet, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}
	return b.wallets.GetAgentWallets(agentID), nil
}

// UpdateWalletLimits overwrites the listed spending limits of the wallet.
func (b *Bank) UpdateWalletLimits(walletID string, limits map[string]wallets.Limit) (wallets.Wallet, error) {
	if err := validWalletID(walletID); err != nil {
		return wallets.Wallet{}, err
	}
	return b.wallets.UpdateWalletLimits(walletID, limits)
}

// UpdateWalletPermissions overwrites the listed capabilities of the wallet.
func (b *Bank) UpdateWalletPermissions(walletID string, permissions map[string]bool) (wallets.Wallet, error) {
	if err := validWalletID(walletID); err != nil {
		return wallets.Wallet{}, err
	}
	return b.wallets.UpdateWalletPermissions(walletID, permissions)
}

// RegisterChainAccount registers the wallet address and sealed key on a chain.
func (b *Bank) RegisterChainAccount(walletID, chainID, address string, privateKey []byte) (wallets.Wallet, error) {
	if err := validWalletID(walletID); err != nil {
		return wallets.Wallet{}, err
	}
	return b.wallets.RegisterChainAccount(walletID, chainID, address, privateKey)
}

// WalletTypes lists the registered wallet type profiles.
func (b *Bank) WalletTypes() []string {
	return b.wallets.ListWalletTypes()
}

// AddWalletType registers a new wallet type profile.
func (b *Bank) AddWalletType(name string, defaultPermissions map[string]bool, defaultLimits map[string]wallets.Limit) error {
	if name == "" {
		return errors.Join(ErrMalformedID, errors.New("wallet type name cannot be empty"))
	}
	return b.wallets.AddWalletType(name, defaultPermissions, defaultLimits)
}

// TransferBetweenAgents composes an agent to agent transfer.
func (b *Bank) TransferBetweenAgents(ctx context.Context, fromAgent, toAgent, chainID, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error) {
	if fromAgent == "" || toAgent == "" {
		return transfer.Transfer{}, ErrEmptyAgentID
	}
	return b.network.TransferBetweenAgents(ctx, fromAgent, toAgent, chainID, asset, amount, memo)
}

// TransferToVault composes an agent to vault transfer.
func (b *Bank) TransferToVault(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error) {
	if agentID == "" {
		return transfer.Transfer{}, ErrEmptyAgentID
	}
	return b.network.TransferToVault(ctx, agentID, chainID, asset, amount, memo)
}

// TransferFromVault composes a vault to agent transfer.
func (b *Bank) TransferFromVault(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error) {
	if agentID == "" {
		return transfer.Transfer{}, ErrEmptyAgentID
	}
	return b.network.TransferFromVault(ctx, agentID, chainID, asset, amount, memo)
}

// CrossChainTransfer composes a paired cross chain transfer for the agent.
func (b *Bank) CrossChainTransfer(ctx context.Context, agentID, fromChain, toChain, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error) {
	if agentID == "" {
		return transfer.Transfer{}, ErrEmptyAgentID
	}
	return b.network.CrossChainTransfer(ctx, agentID, fromChain, toChain, asset, amount, memo)
}

// TransferStatus aggregates the status of a transfer over its legs.
func (b *Bank) TransferStatus(transferID string) (transfer.TransferState, error) {
	if _, err := uuid.Parse(transferID); err != nil {
		return transfer.TransferState{}, errors.Join(ErrMalformedID, err)
	}
	return b.network.TransferStatus(transferID)
}

func validTrxID(id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return errors.Join(ErrMalformedID, fmt.Errorf("transaction id %q", id))
	}
	return nil
}

func validWalletID(id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return errors.Join(ErrMalformedID, fmt.Errorf("wallet id %q", id))
	}
	return nil
}

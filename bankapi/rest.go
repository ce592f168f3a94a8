package bankapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/aurumlabs/custodia/ledger"
	"github.com/aurumlabs/custodia/transaction"
	"github.com/aurumlabs/custodia/transfer"
	"github.com/aurumlabs/custodia/vault"
	"github.com/aurumlabs/custodia/wallets"
)

const defaultRecentLimit = 50

// Banker is the bank facade surface the REST server exposes.
type Banker interface {
	CreateTransaction(ctx context.Context, typ transaction.Type, chainID string, from, to transaction.Entity, amount decimal.Decimal, asset, memo string, metadata map[string]string) (transaction.Transaction, error)
	ApproveTransaction(ctx context.Context, trxID, approverKey, notes string) (transaction.Transaction, error)
	ExecuteTransaction(ctx context.Context, trxID string) (transaction.Transaction, error)
	RejectTransaction(ctx context.Context, trxID, rejectorKey, reason string) (transaction.Transaction, error)
	PendingTransactions() []transaction.Transaction
	Transaction(ctx context.Context, trxID string) (ledger.Record, error)
	RecentTransactions(ctx context.Context, limit int) ([]ledger.Record, error)
	FreezeVault(key, reason string) error
	UnfreezeVault(key, reason string) error
	AddAuthorizedKey(adminKey, key string, isEmergency bool) error
	RemoveAuthorizedKey(adminKey, key string) error
	FundAgentWallet(ctx context.Context, adminKey, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transaction.Transaction, error)
	CreateWallet(agentID, name, walletType, purpose string, customPermissions map[string]bool, customLimits map[string]wallets.Limit) (wallets.Wallet, error)
	Wallet(walletID string) (wallets.Wallet, error)
	AgentWallets(agentID string) ([]wallets.Wallet, error)
	UpdateWalletLimits(walletID string, limits map[string]wallets.Limit) (wallets.Wallet, error)
	UpdateWalletPermissions(walletID string, permissions map[string]bool) (wallets.Wallet, error)
	RegisterChainAccount(walletID, chainID, address string, privateKey []byte) (wallets.Wallet, error)
	WalletTypes() []string
	AddWalletType(name string, defaultPermissions map[string]bool, defaultLimits map[string]wallets.Limit) error
	TransferBetweenAgents(ctx context.Context, fromAgent, toAgent, chainID, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error)
	TransferToVault(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error)
	TransferFromVault(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error)
	CrossChainTransfer(ctx context.Context, agentID, fromChain, toChain, asset string, amount decimal.Decimal, memo string) (transfer.Transfer, error)
	TransferStatus(transferID string) (transfer.TransferState, error)
	EntityBalance(ctx context.Context, entityID, chainID, asset string) (map[string]map[string]decimal.Decimal, error)
	AccountStatement(ctx context.Context, entityID string, from, to time.Time) (ledger.Statement, error)
}

// restErr maps domain errors to http status codes. Anything unmapped is a bad
// request, the details stay in the server log only.
func restErr(err error) error {
	switch {
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, wallets.ErrNotFound), errors.Is(err, transfer.ErrNotFound):
		return fiber.ErrNotFound
	case errors.Is(err, vault.ErrUnauthorized):
		return fiber.ErrForbidden
	case errors.Is(err, vault.ErrVaultFrozen):
		return fiber.ErrLocked
	case errors.Is(err, vault.ErrSubmission):
		return fiber.ErrBadGateway
	default:
		return fiber.ErrBadRequest
	}
}

// AliveResponse is a response for alive and version check.
type AliveResponse struct {
	APIVersion string `json:"api_version"`
	APIHeader  string `json:"api_header"`
	Alive      bool   `json:"alive"`
}

func (s *server) alive(c *fiber.Ctx) error {
	return c.JSON(
		AliveResponse{
			Alive:      true,
			APIVersion: ApiVersion,
			APIHeader:  Header,
		})
}

// CreateTransactionRequest is a request to create a pending transaction.
type CreateTransactionRequest struct {
	Type     transaction.Type   `json:"type"`
	ChainID  string             `json:"chain_id"`
	From     transaction.Entity `json:"from"`
	To       transaction.Entity `json:"to"`
	Amount   decimal.Decimal    `json:"amount"`
	Asset    string             `json:"asset"`
	Memo     string             `json:"memo"`
	Metadata map[string]string  `json:"metadata"`
}

// TransactionResponse carries the transaction snapshot after the operation.
type TransactionResponse struct {
	Transaction transaction.Transaction `json:"transaction"`
	Success     bool                    `json:"success"`
}

func (s *server) createTransaction(c *fiber.Ctx) error {
	var req CreateTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("create transaction endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.Type == "" || req.ChainID == "" || req.Asset == "" || req.To.Address == "" {
		s.log.Error("wrong JSON format for create transaction")
		return fiber.ErrBadRequest
	}

	trx, err := s.bank.CreateTransaction(c.Context(), req.Type, req.ChainID, req.From, req.To, req.Amount, req.Asset, req.Memo, req.Metadata)
	if err != nil {
		s.log.Error(fmt.Sprintf("create transaction endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransactionResponse{Success: true, Transaction: trx})
}

// ApproveTransactionRequest is a request to approve a pending transaction.
type ApproveTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	ApproverKey   string `json:"approver_key"`
	Notes         string `json:"notes"`
}

func (s *server) approveTransaction(c *fiber.Ctx) error {
	var req ApproveTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("approve transaction endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.TransactionID == "" || req.ApproverKey == "" {
		s.log.Error("wrong JSON format for approve transaction")
		return fiber.ErrBadRequest
	}

	trx, err := s.bank.ApproveTransaction(c.Context(), req.TransactionID, req.ApproverKey, req.Notes)
	if err != nil {
		s.log.Error(fmt.Sprintf("approve transaction endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransactionResponse{Success: true, Transaction: trx})
}

// ExecuteTransactionRequest is a request to submit an approved transaction.
type ExecuteTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (s *server) executeTransaction(c *fiber.Ctx) error {
	var req ExecuteTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("execute transaction endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.TransactionID == "" {
		s.log.Error("wrong JSON format for execute transaction")
		return fiber.ErrBadRequest
	}

	trx, err := s.bank.ExecuteTransaction(c.Context(), req.TransactionID)
	if err != nil {
		s.log.Error(fmt.Sprintf("execute transaction endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransactionResponse{Success: true, Transaction: trx})
}

// RejectTransactionRequest is a request to reject a transaction.
type RejectTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	RejectorKey   string `json:"rejector_key"`
	Reason        string `json:"reason"`
}

func (s *server) rejectTransaction(c *fiber.Ctx) error {
	var req RejectTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("reject transaction endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.TransactionID == "" || req.RejectorKey == "" {
		s.log.Error("wrong JSON format for reject transaction")
		return fiber.ErrBadRequest
	}

	trx, err := s.bank.RejectTransaction(c.Context(), req.TransactionID, req.RejectorKey, req.Reason)
	if err != nil {
		s.log.Error(fmt.Sprintf("reject transaction endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransactionResponse{Success: true, Transaction: trx})
}

// PendingTransactionsResponse lists transactions awaiting approvals.
type PendingTransactionsResponse struct {
	Transactions []transaction.Transaction `json:"transactions"`
	Success      bool                      `json:"success"`
}

func (s *server) pendingTransactions(c *fiber.Ctx) error {
	return c.JSON(PendingTransactionsResponse{Success: true, Transactions: s.bank.PendingTransactions()})
}

// RecentTransactionsResponse lists the most recently recorded ledger records.
type RecentTransactionsResponse struct {
	Records []ledger.Record `json:"records"`
	Success bool            `json:"success"`
}

func (s *server) recentTransactions(c *fiber.Ctx) error {
	limit := defaultRecentLimit
	if v := c.Query("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			s.log.Error(fmt.Sprintf("recent transactions endpoint, invalid limit %q", v))
			return fiber.ErrBadRequest
		}
		limit = l
	}

	records, err := s.bank.RecentTransactions(c.Context(), limit)
	if err != nil {
		s.log.Error(fmt.Sprintf("recent transactions endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(RecentTransactionsResponse{Success: true, Records: records})
}

// RecordResponse carries the ledger record with the full status history.
type RecordResponse struct {
	Record  ledger.Record `json:"record"`
	Success bool          `json:"success"`
}

func (s *server) readTransaction(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.ErrBadRequest
	}

	record, err := s.bank.Transaction(c.Context(), id)
	if err != nil {
		s.log.Error(fmt.Sprintf("read transaction endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(RecordResponse{Success: true, Record: record})
}

// FreezeRequest is a request to freeze or unfreeze the vault.
type FreezeRequest struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// AckResponse is a response for operations that return no entity.
type AckResponse struct {
	Success bool `json:"success"`
}

func (s *server) freezeVault(c *fiber.Ctx) error {
	var req FreezeRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("freeze vault endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if err := s.bank.FreezeVault(req.Key, req.Reason); err != nil {
		s.log.Error(fmt.Sprintf("freeze vault endpoint, %s", err.Error()))
		return restErr(err)
	}
	return c.JSON(AckResponse{Success: true})
}

func (s *server) unfreezeVault(c *fiber.Ctx) error {
	var req FreezeRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("unfreeze vault endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if err := s.bank.UnfreezeVault(req.Key, req.Reason); err != nil {
		s.log.Error(fmt.Sprintf("unfreeze vault endpoint, %s", err.Error()))
		return restErr(err)
	}
	return c.JSON(AckResponse{Success: true})
}

// KeyRequest is a request to add or remove an authorized key.
type KeyRequest struct {
	AdminKey    string `json:"admin_key"`
	Key         string `json:"key"`
	IsEmergency bool   `json:"is_emergency"`
}

func (s *server) addAuthorizedKey(c *fiber.Ctx) error {
	var req KeyRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("add key endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if err := s.bank.AddAuthorizedKey(req.AdminKey, req.Key, req.IsEmergency); err != nil {
		s.log.Error(fmt.Sprintf("add key endpoint, %s", err.Error()))
		return restErr(err)
	}
	return c.JSON(AckResponse{Success: true})
}

func (s *server) removeAuthorizedKey(c *fiber.Ctx) error {
	var req KeyRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("remove key endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if err := s.bank.RemoveAuthorizedKey(req.AdminKey, req.Key); err != nil {
		s.log.Error(fmt.Sprintf("remove key endpoint, %s", err.Error()))
		return restErr(err)
	}
	return c.JSON(AckResponse{Success: true})
}

// FundAgentWalletRequest is a request for the operational funding fast path.
type FundAgentWalletRequest struct {
	AdminKey string          `json:"admin_key"`
	AgentID  string          `json:"agent_id"`
	ChainID  string          `json:"chain_id"`
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	Memo     string          `json:"memo"`
}

func (s *server) fundAgentWallet(c *fiber.Ctx) error {
	var req FundAgentWalletRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("fund agent endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.AdminKey == "" || req.AgentID == "" || req.ChainID == "" || req.Asset == "" {
		s.log.Error("wrong JSON format for fund agent wallet")
		return fiber.ErrBadRequest
	}

	trx, err := s.bank.FundAgentWallet(c.Context(), req.AdminKey, req.AgentID, req.ChainID, req.Asset, req.Amount, req.Memo)
	if err != nil {
		s.log.Error(fmt.Sprintf("fund agent endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransactionResponse{Success: true, Transaction: trx})
}

// CreateWalletRequest is a request to create an agent wallet.
type CreateWalletRequest struct {
	AgentID           string                   `json:"agent_id"`
	Name              string                   `json:"name"`
	WalletType        string                   `json:"wallet_type"`
	Purpose           string                   `json:"purpose"`
	CustomPermissions map[string]bool          `json:"custom_permissions"`
	CustomLimits      map[string]wallets.Limit `json:"custom_limits"`
}

// WalletResponse carries the wallet after the operation.
type WalletResponse struct {
	Wallet  wallets.Wallet `json:"wallet"`
	Success bool           `json:"success"`
}

func (s *server) createWallet(c *fiber.Ctx) error {
	var req CreateWalletRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("create wallet endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.AgentID == "" || req.Name == "" {
		s.log.Error("wrong JSON format for create wallet")
		return fiber.ErrBadRequest
	}

	w, err := s.bank.CreateWallet(req.AgentID, req.Name, req.WalletType, req.Purpose, req.CustomPermissions, req.CustomLimits)
	if err != nil {
		s.log.Error(fmt.Sprintf("create wallet endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(WalletResponse{Success: true, Wallet: w})
}

func (s *server) readWallet(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.ErrBadRequest
	}

	w, err := s.bank.Wallet(id)
	if err != nil {
		s.log.Error(fmt.Sprintf("read wallet endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(WalletResponse{Success: true, Wallet: w})
}

// AgentWalletsResponse lists all wallets of an agent.
type AgentWalletsResponse struct {
	Wallets []wallets.Wallet `json:"wallets"`
	Success bool             `json:"success"`
}

func (s *server) agentWallets(c *fiber.Ctx) error {
	agent := c.Params("agent")
	if agent == "" {
		return fiber.ErrBadRequest
	}

	ws, err := s.bank.AgentWallets(agent)
	if err != nil {
		s.log.Error(fmt.Sprintf("agent wallets endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(AgentWalletsResponse{Success: true, Wallets: ws})
}

// UpdateLimitsRequest is a request to overwrite wallet spending limits.
type UpdateLimitsRequest struct {
	WalletID string                   `json:"wallet_id"`
	Limits   map[string]wallets.Limit `json:"limits"`
}

func (s *server) updateWalletLimits(c *fiber.Ctx) error {
	var req UpdateLimitsRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("update limits endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.WalletID == "" || len(req.Limits) == 0 {
		s.log.Error("wrong JSON format for update wallet limits")
		return fiber.ErrBadRequest
	}

	w, err := s.bank.UpdateWalletLimits(req.WalletID, req.Limits)
	if err != nil {
		s.log.Error(fmt.Sprintf("update limits endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(WalletResponse{Success: true, Wallet: w})
}

// UpdatePermissionsRequest is a request to overwrite wallet capabilities.
type UpdatePermissionsRequest struct {
	WalletID    string          `json:"wallet_id"`
	Permissions map[string]bool `json:"permissions"`
}

func (s *server) updateWalletPermissions(c *fiber.Ctx) error {
	var req UpdatePermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("update permissions endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.WalletID == "" || len(req.Permissions) == 0 {
		s.log.Error("wrong JSON format for update wallet permissions")
		return fiber.ErrBadRequest
	}

	w, err := s.bank.UpdateWalletPermissions(req.WalletID, req.Permissions)
	if err != nil {
		s.log.Error(fmt.Sprintf("update permissions endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(WalletResponse{Success: true, Wallet: w})
}

// RegisterChainAccountRequest is a request to register a wallet chain account.
type RegisterChainAccountRequest struct {
	WalletID   string `json:"wallet_id"`
	ChainID    string `json:"chain_id"`
	Address    string `json:"address"`
	PrivateKey []byte `json:"private_key"`
}

func (s *server) registerChainAccount(c *fiber.Ctx) error {
	var req RegisterChainAccountRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("register account endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.WalletID == "" || req.ChainID == "" || req.Address == "" || len(req.PrivateKey) == 0 {
		s.log.Error("wrong JSON format for register chain account")
		return fiber.ErrBadRequest
	}

	w, err := s.bank.RegisterChainAccount(req.WalletID, req.ChainID, req.Address, req.PrivateKey)
	if err != nil {
		s.log.Error(fmt.Sprintf("register account endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(WalletResponse{Success: true, Wallet: w})
}

// WalletTypesResponse lists the registered wallet type profiles.
type WalletTypesResponse struct {
	Types   []string `json:"types"`
	Success bool     `json:"success"`
}

func (s *server) walletTypes(c *fiber.Ctx) error {
	return c.JSON(WalletTypesResponse{Success: true, Types: s.bank.WalletTypes()})
}

// AddWalletTypeRequest is a request to register a new wallet type profile.
type AddWalletTypeRequest struct {
	Name               string                   `json:"name"`
	DefaultPermissions map[string]bool          `json:"default_permissions"`
	DefaultLimits      map[string]wallets.Limit `json:"default_limits"`
}

func (s *server) addWalletType(c *fiber.Ctx) error {
	var req AddWalletTypeRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("add wallet type endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.Name == "" {
		s.log.Error("wrong JSON format for add wallet type")
		return fiber.ErrBadRequest
	}

	if err := s.bank.AddWalletType(req.Name, req.DefaultPermissions, req.DefaultLimits); err != nil {
		s.log.Error(fmt.Sprintf("add wallet type endpoint, %s", err.Error()))
		return restErr(err)
	}
	return c.JSON(AckResponse{Success: true})
}

// TransferRequest is a request to compose a transfer over the network.
type TransferRequest struct {
	FromAgent string          `json:"from_agent"`
	ToAgent   string          `json:"to_agent"`
	AgentID   string          `json:"agent_id"`
	ChainID   string          `json:"chain_id"`
	FromChain string          `json:"from_chain"`
	ToChain   string          `json:"to_chain"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Memo      string          `json:"memo"`
}

// TransferResponse carries the composed transfer with its legs.
type TransferResponse struct {
	Transfer transfer.Transfer `json:"transfer"`
	Success  bool              `json:"success"`
}

func (s *server) transferBetweenAgents(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("agent transfer endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.FromAgent == "" || req.ToAgent == "" || req.ChainID == "" || req.Asset == "" {
		s.log.Error("wrong JSON format for agent transfer")
		return fiber.ErrBadRequest
	}

	t, err := s.bank.TransferBetweenAgents(c.Context(), req.FromAgent, req.ToAgent, req.ChainID, req.Asset, req.Amount, req.Memo)
	if err != nil {
		s.log.Error(fmt.Sprintf("agent transfer endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransferResponse{Success: true, Transfer: t})
}

func (s *server) transferToVault(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("to vault transfer endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.AgentID == "" || req.ChainID == "" || req.Asset == "" {
		s.log.Error("wrong JSON format for to vault transfer")
		return fiber.ErrBadRequest
	}

	t, err := s.bank.TransferToVault(c.Context(), req.AgentID, req.ChainID, req.Asset, req.Amount, req.Memo)
	if err != nil {
		s.log.Error(fmt.Sprintf("to vault transfer endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransferResponse{Success: true, Transfer: t})
}

func (s *server) transferFromVault(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("from vault transfer endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.AgentID == "" || req.ChainID == "" || req.Asset == "" {
		s.log.Error("wrong JSON format for from vault transfer")
		return fiber.ErrBadRequest
	}

	t, err := s.bank.TransferFromVault(c.Context(), req.AgentID, req.ChainID, req.Asset, req.Amount, req.Memo)
	if err != nil {
		s.log.Error(fmt.Sprintf("from vault transfer endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransferResponse{Success: true, Transfer: t})
}

func (s *server) crossChainTransfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		s.log.Error(fmt.Sprintf("cross chain transfer endpoint, failed to parse request body: %s", err.Error()))
		return fiber.ErrBadRequest
	}

	if req.AgentID == "" || req.FromChain == "" || req.ToChain == "" || req.Asset == "" {
		s.log.Error("wrong JSON format for cross chain transfer")
		return fiber.ErrBadRequest
	}

	t, err := s.bank.CrossChainTransfer(c.Context(), req.AgentID, req.FromChain, req.ToChain, req.Asset, req.Amount, req.Memo)
	if err != nil {
		s.log.Error(fmt.Sprintf("cross chain transfer endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransferResponse{Success: true, Transfer: t})
}

// TransferStatusResponse carries the aggregated transfer state.
type TransferStatusResponse struct {
	State   transfer.TransferState `json:"state"`
	Success bool                   `json:"success"`
}

func (s *server) transferStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.ErrBadRequest
	}

	state, err := s.bank.TransferStatus(id)
	if err != nil {
		s.log.Error(fmt.Sprintf("transfer status endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(TransferStatusResponse{Success: true, State: state})
}

// EntityBalanceResponse carries balances keyed by chain and asset.
type EntityBalanceResponse struct {
	Balances map[string]map[string]decimal.Decimal `json:"balances"`
	Success  bool                                  `json:"success"`
}

func (s *server) entityBalance(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.ErrBadRequest
	}

	balances, err := s.bank.EntityBalance(c.Context(), id, c.Query("chain_id"), c.Query("asset"))
	if err != nil {
		s.log.Error(fmt.Sprintf("entity balance endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(EntityBalanceResponse{Success: true, Balances: balances})
}

// AccountStatementResponse carries the statement for the requested range.
type AccountStatementResponse struct {
	Statement ledger.Statement `json:"statement"`
	Success   bool             `json:"success"`
}

func (s *server) accountStatement(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.ErrBadRequest
	}

	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.log.Error(fmt.Sprintf("account statement endpoint, invalid from %q", v))
			return fiber.ErrBadRequest
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.log.Error(fmt.Sprintf("account statement endpoint, invalid to %q", v))
			return fiber.ErrBadRequest
		}
		to = t
	}

	statement, err := s.bank.AccountStatement(c.Context(), id, from, to)
	if err != nil {
		s.log.Error(fmt.Sprintf("account statement endpoint, %s", err.Error()))
		return restErr(err)
	}

	return c.JSON(AccountStatementResponse{Success: true, Statement: statement})
}

package vault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurumlabs/custodia/logger"
	"github.com/aurumlabs/custodia/transaction"
)

var (
	ErrVaultFrozen       = errors.New("vault is frozen, operation is blocked by the emergency freeze")
	ErrUnauthorized      = errors.New("key is not authorized for this operation")
	ErrNotFound          = errors.New("transaction does not exist in the expected bucket")
	ErrDuplicateApproval = errors.New("approver already approved this transaction")
	ErrSelfRemoval       = errors.New("admin cannot remove own authorization")
	ErrConfig            = errors.New("vault configuration is missing for the requested operation")
	ErrKeyNotFound       = errors.New("authorized key does not exist")
	ErrSubmission        = errors.New("chain submission failed")
)

const (
	minApprovalThreshold = 0.0
	maxApprovalThreshold = 1.0

	defaultExecutionTimeout = time.Second * 30
)

var (
	ErrThresholdNotInRange  = errors.New("approval threshold is not in range (0 : 1]")
	ErrContactNotAuthorized = errors.New("emergency contact is not in the authorized keys")
	ErrTierNotValid         = errors.New("threshold tiers must have positive ascending ceilings and at least one required approval")
	ErrNoAuthorizedKeys     = errors.New("at least one authorized key is required")
)

// Tier pairs an amount ceiling with the number of approvals required for
// transactions up to that ceiling.
type Tier struct {
	Ceiling  decimal.Decimal `yaml:"ceiling"  json:"ceiling"`
	Required int             `yaml:"required" json:"required"`
}

// Account is a vault owned account on a single chain.
type Account struct {
	Address      string `yaml:"address" json:"address"`
	EncryptedKey []byte `yaml:"-"       json:"-"`
}

// Config is the configuration of the master vault.
type Config struct {
	AuthorizedKeys          []string           `yaml:"authorized_keys"`
	EmergencyContacts       []string           `yaml:"emergency_contacts"`
	ApprovalThreshold       float64            `yaml:"approval_threshold"`
	ThresholdTiers          map[string][]Tier  `yaml:"threshold_tiers"`
	Addresses               map[string]Account `yaml:"addresses"`
	ExecutionTimeoutSeconds uint64             `yaml:"execution_timeout_seconds"`
}

// Validate validates the master vault configuration.
func (c Config) Validate() error {
	if len(c.AuthorizedKeys) == 0 {
		return ErrNoAuthorizedKeys
	}
	if c.ApprovalThreshold <= minApprovalThreshold || c.ApprovalThreshold > maxApprovalThreshold {
		return ErrThresholdNotInRange
	}
	authorized := make(map[string]struct{}, len(c.AuthorizedKeys))
	for _, k := range c.AuthorizedKeys {
		authorized[k] = struct{}{}
	}
	for _, k := range c.EmergencyContacts {
		if _, ok := authorized[k]; !ok {
			return errors.Join(ErrContactNotAuthorized, fmt.Errorf("contact %q", k))
		}
	}
	for asset, tiers := range c.ThresholdTiers {
		prev := decimal.Zero
		for _, tier := range tiers {
			if tier.Required < 1 || !tier.Ceiling.IsPositive() || !tier.Ceiling.GreaterThan(prev) {
				return errors.Join(ErrTierNotValid, fmt.Errorf("asset %q", asset))
			}
			prev = tier.Ceiling
		}
	}
	return nil
}

// Recorder is the durable ledger the vault records every mutation to.
type Recorder interface {
	RecordTransaction(ctx context.Context, trx *transaction.Transaction) error
	UpdateTransactionStatus(ctx context.Context, id string, s transaction.Status, reason string) error
}

// ChainSubmitter submits a completed approval flow to the chain and returns
// the transaction hash. It is the only blocking external call of the vault.
type ChainSubmitter interface {
	Submit(ctx context.Context, chainID, from, to string, amount decimal.Decimal, asset string) (string, error)
}

// TransactionEvent is published on every transaction lifecycle change.
type TransactionEvent struct {
	TrxID     string             `json:"trx_id"`
	Status    transaction.Status `json:"status"`
	ChainID   string             `json:"chain_id"`
	Asset     string             `json:"asset"`
	Amount    decimal.Decimal    `json:"amount"`
	CreatedAt time.Time          `json:"created_at"`
}

// FreezeEvent is published when the vault is frozen or unfrozen.
type FreezeEvent struct {
	Frozen    bool      `json:"frozen"`
	Key       string    `json:"key"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// EventPublisher publishes vault events. Publishing must not block.
type EventPublisher interface {
	PublishTransactionEvent(ev TransactionEvent)
	PublishFreezeEvent(ev FreezeEvent)
}

// Telemetry collects vault operation measurements.
type Telemetry interface {
	IncrementCounter(name string) bool
	SetGauge(name string, value float64) bool
}

// Funder creates a vault to agent funding transaction through the transfer
// network and returns its id.
type Funder interface {
	FundingTransfer(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (string, error)
}

const (
	TelemetryTrxCreated  = "custodia_vault_transactions_created_total"
	TelemetryTrxApproved = "custodia_vault_transactions_approved_total"
	TelemetryTrxExecuted = "custodia_vault_transactions_executed_total"
	TelemetryTrxFailed   = "custodia_vault_transactions_failed_total"
	TelemetryTrxRejected = "custodia_vault_transactions_rejected_total"
	TelemetryFrozenGauge = "custodia_vault_frozen"
)

// Vault is the single authority over fund movements of a deployment. It holds
// the authorized key lists, approval threshold tiers, per chain accounts, the
// freeze flag and the transaction arena. The transaction status field is the
// single source of truth, bucket membership is a derived index maintained
// together with every status mutation under one lock.
type Vault struct {
	mux         sync.RWMutex
	authorized  map[string]struct{}
	emergency   map[string]struct{}
	threshold   float64
	tiers       map[string][]Tier
	addresses   map[string]Account
	frozen      bool
	arena       map[string]*transaction.Transaction
	index       map[transaction.Status]map[string]struct{}
	rec         Recorder
	sub         ChainSubmitter
	pub         EventPublisher
	tele        Telemetry
	log         logger.Logger
	funder      Funder
	execTimeout time.Duration
}

// New creates a new Vault if config is valid or returns an error otherwise.
// The pub and tele collaborators are optional.
func New(cfg Config, rec Recorder, sub ChainSubmitter, pub EventPublisher, tele Telemetry, log logger.Logger) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	authorized := make(map[string]struct{}, len(cfg.AuthorizedKeys))
	for _, k := range cfg.AuthorizedKeys {
		authorized[k] = struct{}{}
	}
	emergency := make(map[string]struct{}, len(cfg.EmergencyContacts))
	for _, k := range cfg.EmergencyContacts {
		emergency[k] = struct{}{}
	}
	tiers := make(map[string][]Tier, len(cfg.ThresholdTiers))
	for asset, tt := range cfg.ThresholdTiers {
		sorted := make([]Tier, len(tt))
		copy(sorted, tt)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ceiling.LessThan(sorted[j].Ceiling) })
		tiers[asset] = sorted
	}
	addresses := make(map[string]Account, len(cfg.Addresses))
	for chain, acc := range cfg.Addresses {
		addresses[chain] = acc
	}
	timeout := defaultExecutionTimeout
	if cfg.ExecutionTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.ExecutionTimeoutSeconds) * time.Second
	}
	return &Vault{
		authorized:  authorized,
		emergency:   emergency,
		threshold:   cfg.ApprovalThreshold,
		tiers:       tiers,
		addresses:   addresses,
		arena:       make(map[string]*transaction.Transaction),
		index:       make(map[transaction.Status]map[string]struct{}),
		rec:         rec,
		sub:         sub,
		pub:         pub,
		tele:        tele,
		log:         log,
		execTimeout: timeout,
	}, nil
}

// UseFunder wires the transfer network funding path in to the vault.
// It breaks the construction cycle between the vault and the transfer network.
func (v *Vault) UseFunder(f Funder) {
	v.mux.Lock()
	defer v.mux.Unlock()
	v.funder = f
}

// CreateTransaction creates a new pending transaction. The from entity
// defaults to the vault account configured for the chain. The number of
// required approvals is fixed from the threshold tiers at creation.
func (v *Vault) CreateTransaction(
	ctx context.Context, typ transaction.Type, chainID string,
	from, to transaction.Entity, amount decimal.Decimal, asset, memo string,
	metadata map[string]string,
) (transaction.Transaction, error) {
	v.mux.Lock()
	defer v.mux.Unlock()

	if v.frozen {
		return transaction.Transaction{}, ErrVaultFrozen
	}
	if from.Address == "" {
		acc, ok := v.addresses[chainID]
		if !ok {
			return transaction.Transaction{}, errors.Join(ErrConfig, fmt.Errorf("no vault account for chain %q", chainID))
		}
		from = transaction.Entity{Type: transaction.EntityVault, ID: "vault", Address: acc.Address}
	}

	required := v.requiredApprovals(amount, asset)
	trx, err := transaction.New(typ, chainID, asset, amount, from, to, memo, metadata, required)
	if err != nil {
		return transaction.Transaction{}, err
	}

	id := trx.ID.Hex()
	v.arena[id] = trx
	v.indexAdd(transaction.StatusPending, id)

	if err := v.rec.RecordTransaction(ctx, trx); err != nil {
		delete(v.arena, id)
		v.indexDel(transaction.StatusPending, id)
		return transaction.Transaction{}, err
	}

	v.log.Info(fmt.Sprintf("transaction %s created, %s %s %s on %s, requires %d approvals",
		id, trx.Amount, asset, typ, chainID, required))
	v.publish(trx)
	v.count(TelemetryTrxCreated)

	return trx.Copy(), nil
}

// ApproveTransaction appends an approval of an authorized key to a pending
// transaction. When the approvals reach the requirement fixed at creation the
// transaction atomically moves to approved. Every call is recorded durably.
func (v *Vault) ApproveTransaction(ctx context.Context, id, approverKey, notes string) (transaction.Transaction, error) {
	v.mux.Lock()
	defer v.mux.Unlock()

	if v.frozen {
		return transaction.Transaction{}, ErrVaultFrozen
	}
	if _, ok := v.authorized[approverKey]; !ok {
		return transaction.Transaction{}, ErrUnauthorized
	}
	trx, ok := v.arena[id]
	if !ok || trx.Status != transaction.StatusPending {
		return transaction.Transaction{}, ErrNotFound
	}
	if trx.HasApproved(approverKey) {
		return transaction.Transaction{}, ErrDuplicateApproval
	}

	trx.AddApproval(approverKey, notes)
	reason := fmt.Sprintf("approval %d of %d by %s", len(trx.Approvals), trx.RequiredApprovals, approverKey)
	if trx.IsApproved() {
		v.setStatus(trx, transaction.StatusApproved, reason)
	}
	if err := v.rec.UpdateTransactionStatus(ctx, id, trx.Status, reason); err != nil {
		return transaction.Transaction{}, err
	}

	v.log.Info(fmt.Sprintf("transaction %s %s", id, reason))
	v.publish(trx)
	v.count(TelemetryTrxApproved)

	return trx.Copy(), nil
}

// ExecuteTransaction submits an approved transaction to the chain. The status
// flip to executing happens under the lock, the chain submission is awaited
// outside of it and the result is applied in a second critical section so one
// slow submission does not stall unrelated approvals. A failed execution keeps
// the transaction addressable for a retry of the same id.
func (v *Vault) ExecuteTransaction(ctx context.Context, id string) (transaction.Transaction, error) {
	v.mux.Lock()
	if v.frozen {
		v.mux.Unlock()
		return transaction.Transaction{}, ErrVaultFrozen
	}
	trx, ok := v.arena[id]
	if !ok || (trx.Status != transaction.StatusApproved && trx.Status != transaction.StatusFailed) {
		v.mux.Unlock()
		return transaction.Transaction{}, ErrNotFound
	}
	prevStatus, prevReason, prevExecErr := trx.Status, trx.StatusReason, trx.ExecError
	trx.ExecError = ""
	v.setStatus(trx, transaction.StatusExecuting, "chain submission started")
	if err := v.rec.UpdateTransactionStatus(ctx, id, trx.Status, trx.StatusReason); err != nil {
		trx.ExecError = prevExecErr
		v.setStatus(trx, prevStatus, prevReason)
		v.mux.Unlock()
		return transaction.Transaction{}, err
	}
	chainID, fromAddr, toAddr := trx.ChainID, trx.From.Address, trx.To.Address
	amount, asset := trx.Amount, trx.Asset
	v.mux.Unlock()

	subCtx, cancel := context.WithTimeout(ctx, v.execTimeout)
	defer cancel()
	hash, subErr := v.sub.Submit(subCtx, chainID, fromAddr, toAddr, amount, asset)

	v.mux.Lock()
	defer v.mux.Unlock()

	if subErr != nil {
		trx.ExecError = subErr.Error()
		v.setStatus(trx, transaction.StatusFailed, subErr.Error())
		if err := v.rec.RecordTransaction(ctx, trx); err != nil {
			v.log.Error(fmt.Sprintf("transaction %s failure could not be recorded: %s", id, err))
		}
		v.log.Error(fmt.Sprintf("transaction %s chain submission failed: %s", id, subErr))
		v.publish(trx)
		v.count(TelemetryTrxFailed)
		return trx.Copy(), errors.Join(ErrSubmission, subErr)
	}

	trx.TxHash = hash
	trx.ExecError = ""
	v.setStatus(trx, transaction.StatusCompleted, "")
	if err := v.rec.RecordTransaction(ctx, trx); err != nil {
		v.log.Error(fmt.Sprintf("transaction %s completion could not be recorded: %s", id, err))
	}

	v.log.Info(fmt.Sprintf("transaction %s completed with hash %s", id, hash))
	v.publish(trx)
	v.count(TelemetryTrxExecuted)

	return trx.Copy(), nil
}

// RejectTransaction rejects a pending, approved or failed transaction.
// Rejection stays possible while the vault is frozen to allow a safe wind down.
func (v *Vault) RejectTransaction(ctx context.Context, id, rejectorKey, reason string) (transaction.Transaction, error) {
	v.mux.Lock()
	defer v.mux.Unlock()

	if _, ok := v.authorized[rejectorKey]; !ok {
		return transaction.Transaction{}, ErrUnauthorized
	}
	trx, ok := v.arena[id]
	if !ok || (trx.Status != transaction.StatusPending && trx.Status != transaction.StatusApproved &&
		trx.Status != transaction.StatusFailed) {
		return transaction.Transaction{}, ErrNotFound
	}

	trx.Rejection = &transaction.Rejection{RejectorID: rejectorKey, Reason: reason, CreatedAt: time.Now()}
	v.setStatus(trx, transaction.StatusRejected, reason)
	if err := v.rec.UpdateTransactionStatus(ctx, id, trx.Status, fmt.Sprintf("rejected by %s: %s", rejectorKey, reason)); err != nil {
		return transaction.Transaction{}, err
	}

	v.log.Warn(fmt.Sprintf("transaction %s rejected by %s: %s", id, rejectorKey, reason))
	v.publish(trx)
	v.count(TelemetryTrxRejected)

	return trx.Copy(), nil
}

// FreezeVault freezes all fund moving operations. Only emergency contacts may freeze.
func (v *Vault) FreezeVault(key, reason string) error {
	return v.setFrozen(key, reason, true)
}

// UnfreezeVault lifts the emergency freeze. Only emergency contacts may unfreeze.
func (v *Vault) UnfreezeVault(key, reason string) error {
	return v.setFrozen(key, reason, false)
}

func (v *Vault) setFrozen(key, reason string, frozen bool) error {
	v.mux.Lock()
	defer v.mux.Unlock()

	if _, ok := v.emergency[key]; !ok {
		return ErrUnauthorized
	}
	v.frozen = frozen

	state := "unfrozen"
	gauge := 0.0
	if frozen {
		state = "frozen"
		gauge = 1.0
	}
	v.log.Warn(fmt.Sprintf("vault %s by %s: %s", state, key, reason))
	if v.pub != nil {
		v.pub.PublishFreezeEvent(FreezeEvent{Frozen: frozen, Key: key, Reason: reason, CreatedAt: time.Now()})
	}
	if v.tele != nil {
		v.tele.SetGauge(TelemetryFrozenGauge, gauge)
	}
	return nil
}

// IsFrozen reports whether the vault is frozen.
func (v *Vault) IsFrozen() bool {
	v.mux.RLock()
	defer v.mux.RUnlock()
	return v.frozen
}

// AddAuthorizedKey adds a key to the authorized set, optionally as an
// emergency contact.
func (v *Vault) AddAuthorizedKey(adminKey, key string, isEmergency bool) error {
	v.mux.Lock()
	defer v.mux.Unlock()

	if _, ok := v.authorized[adminKey]; !ok {
		return ErrUnauthorized
	}
	v.authorized[key] = struct{}{}
	if isEmergency {
		v.emergency[key] = struct{}{}
	}
	v.log.Info(fmt.Sprintf("key %s authorized by %s, emergency contact: %t", key, adminKey, isEmergency))
	return nil
}

// RemoveAuthorizedKey removes a key from the authorized and emergency sets.
// Removing one's own key is rejected to avoid a lockout.
func (v *Vault) RemoveAuthorizedKey(adminKey, key string) error {
	v.mux.Lock()
	defer v.mux.Unlock()

	if _, ok := v.authorized[adminKey]; !ok {
		return ErrUnauthorized
	}
	if adminKey == key {
		return ErrSelfRemoval
	}
	if _, ok := v.authorized[key]; !ok {
		return ErrKeyNotFound
	}
	delete(v.authorized, key)
	delete(v.emergency, key)
	v.log.Info(fmt.Sprintf("key %s removed by %s", key, adminKey))
	return nil
}

// FundAgentWallet is the operational funding fast path. It creates a vault to
// agent transaction through the transfer network, self approves it with the
// admin key and executes immediately when that single approval satisfies the
// threshold.
func (v *Vault) FundAgentWallet(ctx context.Context, adminKey, agentID, chainID, asset string, amount decimal.Decimal, memo string) (transaction.Transaction, error) {
	v.mux.RLock()
	if v.frozen {
		v.mux.RUnlock()
		return transaction.Transaction{}, ErrVaultFrozen
	}
	if _, ok := v.authorized[adminKey]; !ok {
		v.mux.RUnlock()
		return transaction.Transaction{}, ErrUnauthorized
	}
	funder := v.funder
	v.mux.RUnlock()

	if funder == nil {
		return transaction.Transaction{}, errors.Join(ErrConfig, errors.New("no transfer network wired for funding"))
	}

	id, err := funder.FundingTransfer(ctx, agentID, chainID, asset, amount, memo)
	if err != nil {
		return transaction.Transaction{}, err
	}

	trx, err := v.ApproveTransaction(ctx, id, adminKey, "operational funding fast path")
	if err != nil {
		return transaction.Transaction{}, err
	}
	if trx.Status != transaction.StatusApproved {
		return trx, nil
	}
	return v.ExecuteTransaction(ctx, id)
}

// GetTransaction returns a copy of the transaction by id.
func (v *Vault) GetTransaction(id string) (transaction.Transaction, error) {
	v.mux.RLock()
	defer v.mux.RUnlock()
	trx, ok := v.arena[id]
	if !ok {
		return transaction.Transaction{}, ErrNotFound
	}
	return trx.Copy(), nil
}

// TransactionStatus returns the status of the transaction by id.
func (v *Vault) TransactionStatus(id string) (transaction.Status, error) {
	v.mux.RLock()
	defer v.mux.RUnlock()
	trx, ok := v.arena[id]
	if !ok {
		return "", ErrNotFound
	}
	return trx.Status, nil
}

// GetPendingTransactions returns copies of all pending transactions.
func (v *Vault) GetPendingTransactions() []transaction.Transaction {
	return v.TransactionsByStatus(transaction.StatusPending)
}

// TransactionsByStatus returns copies of all transactions with the given status.
func (v *Vault) TransactionsByStatus(s transaction.Status) []transaction.Transaction {
	v.mux.RLock()
	defer v.mux.RUnlock()
	ids := v.index[s]
	trxs := make([]transaction.Transaction, 0, len(ids))
	for id := range ids {
		trxs = append(trxs, v.arena[id].Copy())
	}
	return trxs
}

// Address returns the vault account address configured for the chain.
func (v *Vault) Address(chainID string) (string, error) {
	v.mux.RLock()
	defer v.mux.RUnlock()
	acc, ok := v.addresses[chainID]
	if !ok {
		return "", errors.Join(ErrConfig, fmt.Errorf("no vault account for chain %q", chainID))
	}
	return acc.Address, nil
}

// requiredApprovals implements the tier lookup. The smallest ceiling that
// covers the amount decides, an amount above all ceilings falls back to the
// highest tier. An asset without tiers requires the fraction of authorized
// keys given by the default threshold, at least one.
func (v *Vault) requiredApprovals(amount decimal.Decimal, asset string) int {
	tiers := v.tiers[asset]
	if len(tiers) == 0 {
		required := int(math.Ceil(v.threshold * float64(len(v.authorized))))
		if required < 1 {
			required = 1
		}
		return required
	}
	for _, tier := range tiers {
		if amount.LessThanOrEqual(tier.Ceiling) {
			return tier.Required
		}
	}
	return tiers[len(tiers)-1].Required
}

// setStatus flips the transaction status and maintains the status index in the
// same critical section, the pair is what keeps a transaction from being lost
// between buckets.
func (v *Vault) setStatus(trx *transaction.Transaction, s transaction.Status, reason string) {
	id := trx.ID.Hex()
	v.indexDel(trx.Status, id)
	trx.UpdateStatus(s, reason)
	v.indexAdd(s, id)
}

func (v *Vault) indexAdd(s transaction.Status, id string) {
	if _, ok := v.index[s]; !ok {
		v.index[s] = make(map[string]struct{})
	}
	v.index[s][id] = struct{}{}
}

func (v *Vault) indexDel(s transaction.Status, id string) {
	if ids, ok := v.index[s]; ok {
		delete(ids, id)
	}
}

func (v *Vault) publish(trx *transaction.Transaction) {
	if v.pub == nil {
		return
	}
	v.pub.PublishTransactionEvent(TransactionEvent{
		TrxID:     trx.ID.Hex(),
		Status:    trx.Status,
		ChainID:   trx.ChainID,
		Asset:     trx.Asset,
		Amount:    trx.Amount,
		CreatedAt: time.Now(),
	})
}

func (v *Vault) count(name string) {
	if v.tele == nil {
		return
	}
	v.tele.IncrementCounter(name)
}

package vault

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aurumlabs/custodia/transaction"
)

type testLoggerMock struct{}

func (l testLoggerMock) Debug(_ string) {}
func (l testLoggerMock) Info(_ string)  {}
func (l testLoggerMock) Warn(_ string)  {}
func (l testLoggerMock) Error(_ string) {}
func (l testLoggerMock) Fatal(_ string) {}

type testRecorderMock struct {
	mux       sync.Mutex
	records   int
	updates   int
	updateErr error
}

func (r *testRecorderMock) RecordTransaction(_ context.Context, _ *transaction.Transaction) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.records++
	return nil
}

func (r *testRecorderMock) UpdateTransactionStatus(_ context.Context, _ string, _ transaction.Status, _ string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates++
	return nil
}

func (r *testRecorderMock) failUpdatesWith(err error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.updateErr = err
}

type testSubmitterMock struct {
	mux   sync.Mutex
	err   error
	calls int
}

func (s *testSubmitterMock) Submit(_ context.Context, chainID, _, _ string, _ decimal.Decimal, _ string) (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "0xHASH" + chainID, nil
}

func (s *testSubmitterMock) failWith(err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.err = err
}

func testConfig() Config {
	return Config{
		AuthorizedKeys:    []string{"admin-1", "admin-2", "admin-3"},
		EmergencyContacts: []string{"admin-1"},
		ApprovalThreshold: 0.5,
		ThresholdTiers: map[string][]Tier{
			"USD": {
				{Ceiling: decimal.NewFromInt(100), Required: 1},
				{Ceiling: decimal.NewFromInt(10000), Required: 2},
			},
		},
		Addresses: map[string]Account{
			"ethereum": {Address: "0xVAULT"},
			"solana":   {Address: "SoVAULT"},
		},
	}
}

func newTestVault(t *testing.T) (*Vault, *testRecorderMock, *testSubmitterMock) {
	t.Helper()
	rec := &testRecorderMock{}
	sub := &testSubmitterMock{}
	v, err := New(testConfig(), rec, sub, nil, nil, testLoggerMock{})
	assert.Nil(t, err)
	return v, rec, sub
}

func agentEntity(id string) transaction.Entity {
	return transaction.Entity{Type: transaction.EntityAgent, ID: id, Address: "0x" + id}
}

func createUSD(t *testing.T, v *Vault, amount int64) transaction.Transaction {
	t.Helper()
	trx, err := v.CreateTransaction(
		context.Background(), transaction.TypeVaultToAgent, "ethereum",
		transaction.Entity{}, agentEntity("agent-1"), decimal.NewFromInt(amount), "USD", "", nil,
	)
	assert.Nil(t, err)
	return trx
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, cfg.Validate())

	cfg.ApprovalThreshold = 0
	assert.ErrorIs(t, cfg.Validate(), ErrThresholdNotInRange)

	cfg = testConfig()
	cfg.EmergencyContacts = []string{"stranger"}
	assert.ErrorIs(t, cfg.Validate(), ErrContactNotAuthorized)

	cfg = testConfig()
	cfg.ThresholdTiers["USD"] = []Tier{{Ceiling: decimal.NewFromInt(-1), Required: 1}}
	assert.ErrorIs(t, cfg.Validate(), ErrTierNotValid)

	cfg = testConfig()
	cfg.AuthorizedKeys = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoAuthorizedKeys)
}

func TestCreateTransactionDefaultsVaultAddress(t *testing.T) {
	v, rec, _ := newTestVault(t)
	trx := createUSD(t, v, 50)
	assert.Equal(t, "0xVAULT", trx.From.Address)
	assert.Equal(t, transaction.StatusPending, trx.Status)
	assert.Equal(t, 1, rec.records)
}

func TestCreateTransactionNoVaultAddress(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.CreateTransaction(
		context.Background(), transaction.TypeVaultToAgent, "kusama",
		transaction.Entity{}, agentEntity("agent-1"), decimal.NewFromInt(1), "USD", "", nil,
	)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestThresholdTierLookup(t *testing.T) {
	v, _, _ := newTestVault(t)

	assert.Equal(t, 1, createUSD(t, v, 50).RequiredApprovals)
	assert.Equal(t, 2, createUSD(t, v, 5000).RequiredApprovals)
	assert.Equal(t, 2, createUSD(t, v, 50000).RequiredApprovals)
}

func TestRequiredApprovalsFractionalDefault(t *testing.T) {
	v, _, _ := newTestVault(t)

	// no tiers for SOL, threshold 0.5 over three keys rounds up to two
	trx, err := v.CreateTransaction(
		context.Background(), transaction.TypeVaultToAgent, "solana",
		transaction.Entity{}, agentEntity("agent-1"), decimal.NewFromInt(7), "SOL", "", nil,
	)
	assert.Nil(t, err)
	assert.Equal(t, 2, trx.RequiredApprovals)
}

func TestSingleApprovalFlow(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 50)
	id := trx.ID.Hex()

	trx, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusApproved, trx.Status)

	trx, err = v.ExecuteTransaction(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusCompleted, trx.Status)
	assert.NotEmpty(t, trx.TxHash)
	assert.Empty(t, trx.ExecError)
	assert.False(t, trx.CompletedAt.IsZero())
}

func TestTwoApprovalsFlow(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 5000)
	id := trx.ID.Hex()

	trx, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusPending, trx.Status)

	trx, err = v.ApproveTransaction(ctx, id, "admin-2", "")
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusApproved, trx.Status)
	assert.Equal(t, 2, trx.RequiredApprovals)
}

func TestDuplicateApprovalRejected(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 5000)
	id := trx.ID.Hex()

	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)
	_, err = v.ApproveTransaction(ctx, id, "admin-1", "second try")
	assert.ErrorIs(t, err, ErrDuplicateApproval)

	got, err := v.GetTransaction(id)
	assert.Nil(t, err)
	assert.Len(t, got.Approvals, 1)
}

func TestApproveUnauthorized(t *testing.T) {
	v, _, _ := newTestVault(t)
	trx := createUSD(t, v, 50)

	_, err := v.ApproveTransaction(context.Background(), trx.ID.Hex(), "stranger", "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestApproveUnknownTransaction(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.ApproveTransaction(context.Background(), "ffffffffffffffffffffffff", "admin-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteRequiresApprovedBucket(t *testing.T) {
	v, _, _ := newTestVault(t)
	trx := createUSD(t, v, 5000)

	_, err := v.ExecuteTransaction(context.Background(), trx.ID.Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteFailureIsRetryable(t *testing.T) {
	v, _, sub := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 50)
	id := trx.ID.Hex()
	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)

	sub.failWith(errors.New("rpc node unreachable"))
	trx, err = v.ExecuteTransaction(ctx, id)
	assert.ErrorIs(t, err, ErrSubmission)
	assert.Equal(t, transaction.StatusFailed, trx.Status)
	assert.Equal(t, "rpc node unreachable", trx.ExecError)
	assert.Empty(t, trx.TxHash)

	got, err := v.GetTransaction(id)
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusFailed, got.Status)

	sub.failWith(nil)
	trx, err = v.ExecuteTransaction(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusCompleted, trx.Status)
	assert.NotEmpty(t, trx.TxHash)
	assert.Empty(t, trx.ExecError)
}

func TestExecuteRecorderFailureRevertsStatus(t *testing.T) {
	v, rec, sub := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 50)
	id := trx.ID.Hex()
	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)

	boom := errors.New("ledger unavailable")
	rec.failUpdatesWith(boom)
	_, err = v.ExecuteTransaction(ctx, id)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, sub.calls)

	got, err := v.GetTransaction(id)
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusApproved, got.Status)

	rec.failUpdatesWith(nil)
	trx, err = v.ExecuteTransaction(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusCompleted, trx.Status)
}

func TestRejectFailedTransaction(t *testing.T) {
	v, _, sub := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 50)
	id := trx.ID.Hex()
	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)

	sub.failWith(errors.New("rpc node unreachable"))
	_, err = v.ExecuteTransaction(ctx, id)
	assert.ErrorIs(t, err, ErrSubmission)

	assert.Nil(t, v.FreezeVault("admin-1", "incident"))

	trx, err = v.RejectTransaction(ctx, id, "admin-2", "wind down after failed submission")
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusRejected, trx.Status)
	assert.NotNil(t, trx.Rejection)
	assert.Equal(t, "admin-2", trx.Rejection.RejectorID)
}

func TestRejectTransaction(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 50)
	id := trx.ID.Hex()

	trx, err := v.RejectTransaction(ctx, id, "admin-2", "wrong receiver")
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusRejected, trx.Status)
	assert.NotNil(t, trx.Rejection)
	assert.Equal(t, "admin-2", trx.Rejection.RejectorID)

	// terminal, cannot be approved or rejected again
	_, err = v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = v.RejectTransaction(ctx, id, "admin-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectApprovedTransaction(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 50)
	id := trx.ID.Hex()
	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)

	trx, err = v.RejectTransaction(ctx, id, "admin-3", "hold everything")
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusRejected, trx.Status)
}

func TestFreezeBlocksMutationsButNotRejection(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	pending := createUSD(t, v, 50)
	approved := createUSD(t, v, 50)
	_, err := v.ApproveTransaction(ctx, approved.ID.Hex(), "admin-1", "")
	assert.Nil(t, err)

	assert.ErrorIs(t, v.FreezeVault("admin-2", "not a contact"), ErrUnauthorized)
	assert.Nil(t, v.FreezeVault("admin-1", "suspicious outflow"))
	assert.True(t, v.IsFrozen())

	_, err = v.CreateTransaction(ctx, transaction.TypeVaultToAgent, "ethereum",
		transaction.Entity{}, agentEntity("agent-1"), decimal.NewFromInt(1), "USD", "", nil)
	assert.ErrorIs(t, err, ErrVaultFrozen)

	_, err = v.ApproveTransaction(ctx, pending.ID.Hex(), "admin-1", "")
	assert.ErrorIs(t, err, ErrVaultFrozen)

	_, err = v.ExecuteTransaction(ctx, approved.ID.Hex())
	assert.ErrorIs(t, err, ErrVaultFrozen)

	_, err = v.RejectTransaction(ctx, pending.ID.Hex(), "admin-2", "wind down")
	assert.Nil(t, err)

	assert.Nil(t, v.UnfreezeVault("admin-1", "investigated"))
	assert.False(t, v.IsFrozen())

	_, err = v.ExecuteTransaction(ctx, approved.ID.Hex())
	assert.Nil(t, err)
}

func TestAddRemoveAuthorizedKey(t *testing.T) {
	v, _, _ := newTestVault(t)

	assert.ErrorIs(t, v.AddAuthorizedKey("stranger", "new-key", false), ErrUnauthorized)
	assert.Nil(t, v.AddAuthorizedKey("admin-1", "admin-4", false))

	trx := createUSD(t, v, 50)
	_, err := v.ApproveTransaction(context.Background(), trx.ID.Hex(), "admin-4", "")
	assert.Nil(t, err)

	assert.ErrorIs(t, v.RemoveAuthorizedKey("admin-1", "admin-1"), ErrSelfRemoval)
	assert.ErrorIs(t, v.RemoveAuthorizedKey("admin-1", "ghost"), ErrKeyNotFound)
	assert.Nil(t, v.RemoveAuthorizedKey("admin-1", "admin-4"))
}

func TestRequiredApprovalsFixedAtCreation(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 5000)
	id := trx.ID.Hex()
	assert.Equal(t, 2, trx.RequiredApprovals)

	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)
	_, err = v.ApproveTransaction(ctx, id, "admin-2", "")
	assert.Nil(t, err)

	got, err := v.GetTransaction(id)
	assert.Nil(t, err)
	assert.Equal(t, 2, got.RequiredApprovals)
	_, err = v.ExecuteTransaction(ctx, id)
	assert.Nil(t, err)
	got, err = v.GetTransaction(id)
	assert.Nil(t, err)
	assert.Equal(t, 2, got.RequiredApprovals)
}

func TestBucketExclusivity(t *testing.T) {
	v, _, sub := newTestVault(t)
	ctx := context.Background()

	pending := createUSD(t, v, 5000)
	approved := createUSD(t, v, 50)
	_, err := v.ApproveTransaction(ctx, approved.ID.Hex(), "admin-1", "")
	assert.Nil(t, err)
	executed := createUSD(t, v, 50)
	_, err = v.ApproveTransaction(ctx, executed.ID.Hex(), "admin-2", "")
	assert.Nil(t, err)
	_, err = v.ExecuteTransaction(ctx, executed.ID.Hex())
	assert.Nil(t, err)
	rejected := createUSD(t, v, 50)
	_, err = v.RejectTransaction(ctx, rejected.ID.Hex(), "admin-1", "no")
	assert.Nil(t, err)
	failed := createUSD(t, v, 50)
	_, err = v.ApproveTransaction(ctx, failed.ID.Hex(), "admin-3", "")
	assert.Nil(t, err)
	sub.failWith(errors.New("boom"))
	_, err = v.ExecuteTransaction(ctx, failed.ID.Hex())
	assert.ErrorIs(t, err, ErrSubmission)

	seen := make(map[string]int)
	for _, s := range []transaction.Status{
		transaction.StatusPending, transaction.StatusApproved, transaction.StatusExecuting,
		transaction.StatusCompleted, transaction.StatusFailed, transaction.StatusRejected,
	} {
		for _, trx := range v.TransactionsByStatus(s) {
			seen[trx.ID.Hex()]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
	assert.Len(t, seen, 5)
	assert.Contains(t, seen, pending.ID.Hex())

	pendingBucket := v.TransactionsByStatus(transaction.StatusPending)
	assert.Len(t, pendingBucket, 1)
	assert.Equal(t, pending.ID, pendingBucket[0].ID)
}

func TestConcurrentApprovalsSingleThresholdFlip(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 5000)
	id := trx.ID.Hex()

	keys := []string{"admin-1", "admin-2", "admin-3"}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			v.ApproveTransaction(ctx, id, key, "")
		}(key)
	}
	wg.Wait()

	got, err := v.GetTransaction(id)
	assert.Nil(t, err)
	assert.Equal(t, transaction.StatusApproved, got.Status)
	// third approval arrives after the transaction left pending and is refused
	assert.Len(t, got.Approvals, 2)
}

func TestLedgerRecordedOnEveryApproval(t *testing.T) {
	v, rec, _ := newTestVault(t)
	ctx := context.Background()

	trx := createUSD(t, v, 5000)
	id := trx.ID.Hex()
	_, err := v.ApproveTransaction(ctx, id, "admin-1", "")
	assert.Nil(t, err)
	_, err = v.ApproveTransaction(ctx, id, "admin-2", "")
	assert.Nil(t, err)

	rec.mux.Lock()
	defer rec.mux.Unlock()
	assert.Equal(t, 1, rec.records)
	assert.Equal(t, 2, rec.updates)
}

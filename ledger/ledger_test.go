package ledger

import (
	"context"
	"testing"
	"time"

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

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(context.Background(), Config{}, testLoggerMock{})
	assert.Nil(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestTrx(t *testing.T, fromID, toID string, amount int64) *transaction.Transaction {
	t.Helper()
	trx, err := transaction.New(
		transaction.TypeVaultToAgent, "ethereum", "USDT", decimal.NewFromInt(amount),
		transaction.Entity{Type: transaction.EntityVault, ID: fromID, Address: "0x" + fromID},
		transaction.Entity{Type: transaction.EntityAgent, ID: toID, Address: "0x" + toID},
		"", nil, 1,
	)
	assert.Nil(t, err)
	return trx
}

func TestRecordAndGetTransaction(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	trx := newTestTrx(t, "master", "agent-1", 100)
	assert.Nil(t, l.RecordTransaction(ctx, trx))

	rec, err := l.GetTransaction(ctx, trx.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, trx.ID, rec.Transaction.ID)
	assert.Len(t, rec.History, 1)
	assert.Equal(t, transaction.StatusPending, rec.History[0].Status)
}

func TestGetTransactionNotFound(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.GetTransaction(context.Background(), "ffffffffffffffffffffffff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTransactionStatusAppendsHistory(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	trx := newTestTrx(t, "master", "agent-1", 100)
	assert.Nil(t, l.RecordTransaction(ctx, trx))
	assert.Nil(t, l.UpdateTransactionStatus(ctx, trx.ID.Hex(), transaction.StatusApproved, "threshold reached"))
	assert.Nil(t, l.UpdateTransactionStatus(ctx, trx.ID.Hex(), transaction.StatusExecuting, ""))

	rec, err := l.GetTransaction(ctx, trx.ID.Hex())
	assert.Nil(t, err)
	assert.Len(t, rec.History, 3)
	assert.Equal(t, transaction.StatusPending, rec.History[0].Status)
	assert.Equal(t, transaction.StatusApproved, rec.History[1].Status)
	assert.Equal(t, transaction.StatusExecuting, rec.History[2].Status)
	assert.Equal(t, transaction.StatusExecuting, rec.Transaction.Status)
}

func TestUpdateTransactionStatusUnknownID(t *testing.T) {
	l := newTestLedger(t)
	err := l.UpdateTransactionStatus(context.Background(), "ffffffffffffffffffffffff", transaction.StatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTransactionsMostRecentFirst(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var last string
	for i := int64(1); i <= 5; i++ {
		trx := newTestTrx(t, "master", "agent-1", i)
		assert.Nil(t, l.RecordTransaction(ctx, trx))
		last = trx.ID.Hex()
	}

	recs, err := l.GetTransactions(ctx, 3)
	assert.Nil(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, last, recs[0].Transaction.ID.Hex())
	assert.True(t, recs[0].Transaction.Amount.GreaterThan(recs[1].Transaction.Amount))
}

func TestEntityBalanceReplaysCompletedOnly(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	funded := newTestTrx(t, "master", "agent-1", 100)
	funded.UpdateStatus(transaction.StatusCompleted, "")
	assert.Nil(t, l.RecordTransaction(ctx, funded))

	pending := newTestTrx(t, "master", "agent-1", 999)
	assert.Nil(t, l.RecordTransaction(ctx, pending))

	spent := newTestTrx(t, "agent-1", "agent-2", 30)
	spent.UpdateStatus(transaction.StatusCompleted, "")
	assert.Nil(t, l.RecordTransaction(ctx, spent))

	balance, err := l.EntityBalance(ctx, "agent-1", "", "")
	assert.Nil(t, err)
	assert.True(t, balance["ethereum"]["USDT"].Equal(decimal.NewFromInt(70)))

	balance, err = l.EntityBalance(ctx, "agent-2", "ethereum", "USDT")
	assert.Nil(t, err)
	assert.True(t, balance["ethereum"]["USDT"].Equal(decimal.NewFromInt(30)))

	balance, err = l.EntityBalance(ctx, "agent-1", "solana", "")
	assert.Nil(t, err)
	assert.Empty(t, balance)
}

func TestAccountStatement(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	in := newTestTrx(t, "master", "agent-1", 100)
	in.UpdateStatus(transaction.StatusCompleted, "")
	assert.Nil(t, l.RecordTransaction(ctx, in))

	out := newTestTrx(t, "agent-1", "agent-2", 25)
	out.UpdateStatus(transaction.StatusCompleted, "")
	assert.Nil(t, l.RecordTransaction(ctx, out))

	st, err := l.AccountStatement(ctx, "agent-1", time.Now().Add(-time.Hour), time.Time{})
	assert.Nil(t, err)
	assert.Len(t, st.Entries, 2)
	assert.True(t, st.TotalIn["USDT"].Equal(decimal.NewFromInt(100)))
	assert.True(t, st.TotalOut["USDT"].Equal(decimal.NewFromInt(25)))

	st, err = l.AccountStatement(ctx, "agent-1", time.Now().Add(time.Hour), time.Time{})
	assert.Nil(t, err)
	assert.Empty(t, st.Entries)
}

package transfer

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

type testAuthorityMock struct {
	mux      sync.Mutex
	statuses map[string]transaction.Status
	created  []transaction.Transaction
}

func newTestAuthority() *testAuthorityMock {
	return &testAuthorityMock{statuses: make(map[string]transaction.Status)}
}

func (a *testAuthorityMock) CreateTransaction(
	_ context.Context, typ transaction.Type, chainID string,
	from, to transaction.Entity, amount decimal.Decimal, asset, memo string,
	metadata map[string]string,
) (transaction.Transaction, error) {
	if from.Address == "" {
		from = transaction.Entity{Type: transaction.EntityVault, ID: "vault", Address: "0xVAULT-" + chainID}
	}
	trx, err := transaction.New(typ, chainID, asset, amount, from, to, memo, metadata, 1)
	if err != nil {
		return transaction.Transaction{}, err
	}
	a.mux.Lock()
	defer a.mux.Unlock()
	a.statuses[trx.ID.Hex()] = transaction.StatusPending
	a.created = append(a.created, trx.Copy())
	return trx.Copy(), nil
}

func (a *testAuthorityMock) TransactionStatus(id string) (transaction.Status, error) {
	a.mux.Lock()
	defer a.mux.Unlock()
	s, ok := a.statuses[id]
	if !ok {
		return "", errors.New("unknown transaction")
	}
	return s, nil
}

func (a *testAuthorityMock) Address(chainID string) (string, error) {
	return "0xVAULT-" + chainID, nil
}

func (a *testAuthorityMock) setStatus(id string, s transaction.Status) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.statuses[id] = s
}

type testResolverMock struct{}

func (r testResolverMock) AgentWalletAddress(agentID, chainID string) (string, error) {
	if agentID == "ghost" {
		return "", errors.New("wallet does not exist in the factory")
	}
	return "0x" + agentID + "-" + chainID, nil
}

func testNetwork(t *testing.T) (*Network, *testAuthorityMock) {
	t.Helper()
	authority := newTestAuthority()
	n, err := New(Config{Routes: []Route{
		{From: "ethereum", To: "solana", Bridge: "wormhole", Fee: decimal.NewFromFloat(0.3)},
	}}, authority, testResolverMock{}, testLoggerMock{})
	assert.Nil(t, err)
	return n, authority
}

func TestConfigValidate(t *testing.T) {
	err := Config{Routes: []Route{{From: "ethereum", To: "ethereum"}}}.Validate()
	assert.ErrorIs(t, err, ErrRouteNotValid)
	assert.Nil(t, Config{}.Validate())
}

func TestTransferBetweenAgents(t *testing.T) {
	n, authority := testNetwork(t)
	tr, err := n.TransferBetweenAgents(context.Background(), "agent-1", "agent-2", "ethereum", "USDT", decimal.NewFromInt(10), "loan")
	assert.Nil(t, err)
	assert.Equal(t, KindAgentToAgent, tr.Kind)
	assert.Len(t, tr.Legs, 1)

	trx := authority.created[0]
	assert.Equal(t, transaction.TypeAgentToAgent, trx.Type)
	assert.Equal(t, "0xagent-1-ethereum", trx.From.Address)
	assert.Equal(t, "0xagent-2-ethereum", trx.To.Address)
}

func TestTransferToVault(t *testing.T) {
	n, authority := testNetwork(t)
	tr, err := n.TransferToVault(context.Background(), "agent-1", "ethereum", "USDT", decimal.NewFromInt(10), "")
	assert.Nil(t, err)
	assert.Equal(t, KindToVault, tr.Kind)

	trx := authority.created[0]
	assert.Equal(t, transaction.TypeAgentToVault, trx.Type)
	assert.Equal(t, "0xVAULT-ethereum", trx.To.Address)
}

func TestTransferFromVault(t *testing.T) {
	n, authority := testNetwork(t)
	tr, err := n.TransferFromVault(context.Background(), "agent-1", "ethereum", "USDT", decimal.NewFromInt(10), "")
	assert.Nil(t, err)
	assert.Equal(t, KindFromVault, tr.Kind)

	trx := authority.created[0]
	assert.Equal(t, transaction.TypeVaultToAgent, trx.Type)
	assert.Equal(t, transaction.EntityVault, trx.From.Type)
}

func TestTransferUnknownAgent(t *testing.T) {
	n, _ := testNetwork(t)
	_, err := n.TransferFromVault(context.Background(), "ghost", "ethereum", "USDT", decimal.NewFromInt(10), "")
	assert.NotNil(t, err)
}

func TestFundingTransferReturnsLegID(t *testing.T) {
	n, authority := testNetwork(t)
	id, err := n.FundingTransfer(context.Background(), "agent-1", "ethereum", "USDT", decimal.NewFromInt(10), "fund")
	assert.Nil(t, err)
	assert.Equal(t, authority.created[0].ID.Hex(), id)
}

func TestCrossChainTransferComposesTwoLegs(t *testing.T) {
	n, authority := testNetwork(t)
	tr, err := n.CrossChainTransfer(context.Background(), "agent-1", "ethereum", "solana", "USDT", decimal.NewFromInt(10), "")
	assert.Nil(t, err)
	assert.Equal(t, KindCrossChain, tr.Kind)
	assert.Len(t, tr.Legs, 2)
	assert.Equal(t, "wormhole", tr.Route.Bridge)

	debit, credit := authority.created[0], authority.created[1]
	assert.Equal(t, "debit", debit.Metadata["leg"])
	assert.Equal(t, "credit", credit.Metadata["leg"])
	assert.Equal(t, tr.ID, debit.Metadata["transfer_id"])
	assert.Equal(t, tr.ID, credit.Metadata["transfer_id"])
	assert.Equal(t, "ethereum", debit.ChainID)
	assert.Equal(t, "solana", credit.ChainID)
}

func TestCrossChainTransferNoRoute(t *testing.T) {
	n, _ := testNetwork(t)
	_, err := n.CrossChainTransfer(context.Background(), "agent-1", "solana", "ethereum", "USDT", decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = n.CrossChainTransfer(context.Background(), "agent-1", "ethereum", "ethereum", "USDT", decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ErrSameChain)
}

func TestTransferStatusAggregation(t *testing.T) {
	n, authority := testNetwork(t)
	ctx := context.Background()

	tr, err := n.CrossChainTransfer(ctx, "agent-1", "ethereum", "solana", "USDT", decimal.NewFromInt(10), "")
	assert.Nil(t, err)
	debit, credit := tr.Legs[0], tr.Legs[1]

	state, err := n.TransferStatus(tr.ID)
	assert.Nil(t, err)
	assert.Equal(t, StatusPending, state.Status)

	authority.setStatus(debit, transaction.StatusCompleted)
	state, err = n.TransferStatus(tr.ID)
	assert.Nil(t, err)
	assert.Equal(t, StatusInProgress, state.Status)

	authority.setStatus(credit, transaction.StatusCompleted)
	state, err = n.TransferStatus(tr.ID)
	assert.Nil(t, err)
	assert.Equal(t, StatusCompleted, state.Status)

	authority.setStatus(credit, transaction.StatusFailed)
	state, err = n.TransferStatus(tr.ID)
	assert.Nil(t, err)
	assert.Equal(t, StatusFailed, state.Status)
}

func TestTransferStatusUnknownTransfer(t *testing.T) {
	n, _ := testNetwork(t)
	_, err := n.TransferStatus("c1b2a3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = n.GetTransfer("c1b2a3")
	assert.ErrorIs(t, err, ErrNotFound)
}

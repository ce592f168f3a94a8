package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurumlabs/custodia/logger"
	"github.com/aurumlabs/custodia/transaction"
)

var (
	ErrNoRoute       = errors.New("no route configured between the chains")
	ErrNotFound      = errors.New("transfer does not exist in the network")
	ErrSameChain     = errors.New("cross chain transfer requires two different chains")
	ErrRouteNotValid = errors.New("route must name two different chains")
)

// Kind describes the shape of a transfer composed by the network.
type Kind string

const (
	KindAgentToAgent Kind = "agent_to_agent"
	KindToVault      Kind = "to_vault"
	KindFromVault    Kind = "from_vault"
	KindCrossChain   Kind = "cross_chain"
)

// Status is the network level aggregate over the underlying transaction legs.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// Route is a configured path between two chains.
type Route struct {
	From   string          `yaml:"from"   json:"from"`
	To     string          `yaml:"to"     json:"to"`
	Bridge string          `yaml:"bridge" json:"bridge"`
	Fee    decimal.Decimal `yaml:"fee"    json:"fee"`
}

// Config is the configuration of the transfer network.
type Config struct {
	Routes []Route `yaml:"routes"`
}

// Validate validates the transfer network configuration.
func (c Config) Validate() error {
	for _, r := range c.Routes {
		if r.From == "" || r.To == "" || r.From == r.To {
			return errors.Join(ErrRouteNotValid, fmt.Errorf("route %q -> %q", r.From, r.To))
		}
	}
	return nil
}

// Transfer is the in flight bookkeeping of one composed transfer. A cross
// chain transfer holds two legs, a paired debit and credit, all others hold one.
type Transfer struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Legs      []string  `json:"legs"`
	Route     *Route    `json:"route,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TransferState is the aggregated status of a transfer and its legs.
type TransferState struct {
	TransferID string                        `json:"transfer_id"`
	Kind       Kind                          `json:"kind"`
	Status     Status                        `json:"status"`
	Legs       map[string]transaction.Status `json:"legs"`
}

// TransactionAuthority is the master vault surface the network composes
// transactions through. Approval and execution stay with the vault.
type TransactionAuthority interface {
	CreateTransaction(
		ctx context.Context, typ transaction.Type, chainID string,
		from, to transaction.Entity, amount decimal.Decimal, asset, memo string,
		metadata map[string]string,
	) (transaction.Transaction, error)
	TransactionStatus(id string) (transaction.Status, error)
	Address(chainID string) (string, error)
}

// WalletResolver resolves agent wallet addresses per chain.
type WalletResolver interface {
	AgentWalletAddress(agentID, chainID string) (string, error)
}

// Network orchestrates agent to agent, agent to vault, vault to agent and
// cross chain transfers. It owns no persistent state beyond the in flight
// transfer bookkeeping.
type Network struct {
	mux       sync.RWMutex
	vault     TransactionAuthority
	wallets   WalletResolver
	routes    map[string]Route
	transfers map[string]*Transfer
	log       logger.Logger
}

// New creates a new Network if config is valid or returns an error otherwise.
func New(cfg Config, vault TransactionAuthority, wallets WalletResolver, log logger.Logger) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routes := make(map[string]Route, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes[routeKey(r.From, r.To)] = r
	}
	return &Network{
		vault:     vault,
		wallets:   wallets,
		routes:    routes,
		transfers: make(map[string]*Transfer),
		log:       log,
	}, nil
}

// TransferBetweenAgents composes a single agent to agent transaction.
func (n *Network) TransferBetweenAgents(ctx context.Context, fromAgent, toAgent, chainID, asset string, amount decimal.Decimal, memo string) (Transfer, error) {
	fromAddr, err := n.wallets.AgentWalletAddress(fromAgent, chainID)
	if err != nil {
		return Transfer{}, err
	}
	toAddr, err := n.wallets.AgentWalletAddress(toAgent, chainID)
	if err != nil {
		return Transfer{}, err
	}
	trx, err := n.vault.CreateTransaction(ctx, transaction.TypeAgentToAgent, chainID,
		transaction.Entity{Type: transaction.EntityAgent, ID: fromAgent, Address: fromAddr},
		transaction.Entity{Type: transaction.EntityAgent, ID: toAgent, Address: toAddr},
		amount, asset, memo, nil,
	)
	if err != nil {
		return Transfer{}, err
	}
	return n.register(KindAgentToAgent, nil, trx.ID.Hex()), nil
}

// TransferToVault composes a single agent to vault transaction.
func (n *Network) TransferToVault(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (Transfer, error) {
	fromAddr, err := n.wallets.AgentWalletAddress(agentID, chainID)
	if err != nil {
		return Transfer{}, err
	}
	vaultAddr, err := n.vault.Address(chainID)
	if err != nil {
		return Transfer{}, err
	}
	trx, err := n.vault.CreateTransaction(ctx, transaction.TypeAgentToVault, chainID,
		transaction.Entity{Type: transaction.EntityAgent, ID: agentID, Address: fromAddr},
		transaction.Entity{Type: transaction.EntityVault, ID: "vault", Address: vaultAddr},
		amount, asset, memo, nil,
	)
	if err != nil {
		return Transfer{}, err
	}
	return n.register(KindToVault, nil, trx.ID.Hex()), nil
}

// TransferFromVault composes a single vault to agent transaction. The from
// entity is left empty so the vault fills in its configured chain account.
func (n *Network) TransferFromVault(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (Transfer, error) {
	toAddr, err := n.wallets.AgentWalletAddress(agentID, chainID)
	if err != nil {
		return Transfer{}, err
	}
	trx, err := n.vault.CreateTransaction(ctx, transaction.TypeVaultToAgent, chainID,
		transaction.Entity{},
		transaction.Entity{Type: transaction.EntityAgent, ID: agentID, Address: toAddr},
		amount, asset, memo, nil,
	)
	if err != nil {
		return Transfer{}, err
	}
	return n.register(KindFromVault, nil, trx.ID.Hex()), nil
}

// FundingTransfer implements the vault funding fast path. It returns the id of
// the single vault to agent leg for the vault to approve and execute.
func (n *Network) FundingTransfer(ctx context.Context, agentID, chainID, asset string, amount decimal.Decimal, memo string) (string, error) {
	tr, err := n.TransferFromVault(ctx, agentID, chainID, asset, amount, memo)
	if err != nil {
		return "", err
	}
	return tr.Legs[0], nil
}

// CrossChainTransfer composes a paired debit and credit for the agent over the
// optimal configured route between the chains.
func (n *Network) CrossChainTransfer(ctx context.Context, agentID, fromChain, toChain, asset string, amount decimal.Decimal, memo string) (Transfer, error) {
	route, err := n.OptimalRoute(fromChain, toChain)
	if err != nil {
		return Transfer{}, err
	}

	debitAddr, err := n.wallets.AgentWalletAddress(agentID, fromChain)
	if err != nil {
		return Transfer{}, err
	}
	creditAddr, err := n.wallets.AgentWalletAddress(agentID, toChain)
	if err != nil {
		return Transfer{}, err
	}
	debitVault, err := n.vault.Address(fromChain)
	if err != nil {
		return Transfer{}, err
	}

	transferID := uuid.NewString()
	debit, err := n.vault.CreateTransaction(ctx, transaction.TypeCrossChain, fromChain,
		transaction.Entity{Type: transaction.EntityAgent, ID: agentID, Address: debitAddr},
		transaction.Entity{Type: transaction.EntityVault, ID: "vault", Address: debitVault},
		amount, asset, memo,
		map[string]string{"transfer_id": transferID, "leg": "debit", "bridge": route.Bridge},
	)
	if err != nil {
		return Transfer{}, err
	}
	credit, err := n.vault.CreateTransaction(ctx, transaction.TypeCrossChain, toChain,
		transaction.Entity{},
		transaction.Entity{Type: transaction.EntityAgent, ID: agentID, Address: creditAddr},
		amount, asset, memo,
		map[string]string{"transfer_id": transferID, "leg": "credit", "bridge": route.Bridge},
	)
	if err != nil {
		return Transfer{}, err
	}

	return n.registerWithID(transferID, KindCrossChain, &route, debit.ID.Hex(), credit.ID.Hex()), nil
}

// OptimalRoute looks up the configured route between the chains.
func (n *Network) OptimalRoute(fromChain, toChain string) (Route, error) {
	if fromChain == toChain {
		return Route{}, ErrSameChain
	}
	n.mux.RLock()
	defer n.mux.RUnlock()
	route, ok := n.routes[routeKey(fromChain, toChain)]
	if !ok {
		return Route{}, errors.Join(ErrNoRoute, fmt.Errorf("%s -> %s", fromChain, toChain))
	}
	return route, nil
}

// TransferStatus aggregates the status of the underlying legs. A paired cross
// chain transfer completes only when both legs complete and fails when either
// leg fails.
func (n *Network) TransferStatus(transferID string) (TransferState, error) {
	n.mux.RLock()
	tr, ok := n.transfers[transferID]
	n.mux.RUnlock()
	if !ok {
		return TransferState{}, ErrNotFound
	}

	state := TransferState{
		TransferID: tr.ID,
		Kind:       tr.Kind,
		Legs:       make(map[string]transaction.Status, len(tr.Legs)),
	}
	completed := 0
	var failed, rejected, inProgress bool
	for _, leg := range tr.Legs {
		s, err := n.vault.TransactionStatus(leg)
		if err != nil {
			return TransferState{}, err
		}
		state.Legs[leg] = s
		switch s {
		case transaction.StatusCompleted:
			completed++
		case transaction.StatusFailed:
			failed = true
		case transaction.StatusRejected, transaction.StatusCancelled:
			rejected = true
		case transaction.StatusApproved, transaction.StatusExecuting:
			inProgress = true
		}
	}

	switch {
	case failed:
		state.Status = StatusFailed
	case rejected:
		state.Status = StatusRejected
	case completed == len(tr.Legs):
		state.Status = StatusCompleted
	case inProgress || completed > 0:
		state.Status = StatusInProgress
	default:
		state.Status = StatusPending
	}
	return state, nil
}

// GetTransfer returns the transfer bookkeeping by id.
func (n *Network) GetTransfer(transferID string) (Transfer, error) {
	n.mux.RLock()
	defer n.mux.RUnlock()
	tr, ok := n.transfers[transferID]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	c := *tr
	c.Legs = append([]string(nil), tr.Legs...)
	return c, nil
}

func (n *Network) register(kind Kind, route *Route, legs ...string) Transfer {
	return n.registerWithID(uuid.NewString(), kind, route, legs...)
}

func (n *Network) registerWithID(id string, kind Kind, route *Route, legs ...string) Transfer {
	tr := &Transfer{
		ID:        id,
		Kind:      kind,
		Legs:      legs,
		Route:     route,
		CreatedAt: time.Now(),
	}
	n.mux.Lock()
	n.transfers[id] = tr
	n.mux.Unlock()

	n.log.Info(fmt.Sprintf("transfer %s of kind %s registered with %d legs", id, kind, len(legs)))

	c := *tr
	c.Legs = append([]string(nil), tr.Legs...)
	return c
}

func routeKey(from, to string) string {
	return from + "->" + to
}

package wallets

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aurumlabs/custodia/logger"
)

var (
	ErrNotFound          = errors.New("wallet does not exist in the factory")
	ErrUnknownWalletType = errors.New("wallet type is not registered and no custom profile is provided")
	ErrWalletTypeExists  = errors.New("wallet type is already registered")
	ErrEmptyAgentID      = errors.New("agent id cannot be empty")
	ErrEmptyAddress      = errors.New("chain account address cannot be empty")
	ErrNoChainAccount    = errors.New("wallet has no account registered for the chain")
)

// Period is a spending limit reset period.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Limit is a per asset spending limit.
type Limit struct {
	Amount decimal.Decimal `json:"amount" yaml:"amount"`
	Period Period          `json:"period" yaml:"period"`
}

// Profile is a wallet type default permission and limit set.
type Profile struct {
	Permissions map[string]bool  `json:"permissions" yaml:"permissions"`
	Limits      map[string]Limit `json:"limits"      yaml:"limits"`
}

// ChainAccount is a wallet account on a single chain. The private key is
// stored sealed by the credential cipher, never in plain text.
type ChainAccount struct {
	Address      string `json:"address"`
	EncryptedKey []byte `json:"encrypted_key,omitempty"`
}

// Wallet is a sub account of one automated trading agent with its own
// permissions, spending limits and chain accounts.
type Wallet struct {
	ID          primitive.ObjectID      `json:"_id"`
	AgentID     string                  `json:"agent_id"`
	Name        string                  `json:"name"`
	Type        string                  `json:"type"`
	Purpose     string                  `json:"purpose"`
	Permissions map[string]bool         `json:"permissions"`
	Limits      map[string]Limit        `json:"limits"`
	Accounts    map[string]ChainAccount `json:"accounts"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Cipher seals and opens wallet secrets. It is an external primitive from the
// factory point of view.
type Cipher interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// Factory creates and looks up per agent wallets. The first wallet created for
// an agent is addressable as the agent wallet for simple lookups.
type Factory struct {
	mux      sync.RWMutex
	wallets  map[string]*Wallet
	byAgent  map[string][]string
	primary  map[string]string
	profiles map[string]Profile
	cipher   Cipher
	log      logger.Logger
}

// NewFactory creates a Factory with the default wallet type profiles registered.
func NewFactory(cipher Cipher, log logger.Logger) *Factory {
	return &Factory{
		wallets:  make(map[string]*Wallet),
		byAgent:  make(map[string][]string),
		primary:  make(map[string]string),
		profiles: defaultProfiles(),
		cipher:   cipher,
		log:      log,
	}
}

func defaultProfiles() map[string]Profile {
	return map[string]Profile{
		"trading": {
			Permissions: map[string]bool{
				"trade":    true,
				"transfer": true,
				"withdraw": false,
			},
			Limits: map[string]Limit{
				"USDT": {Amount: decimal.NewFromInt(10000), Period: PeriodDaily},
			},
		},
		"staking": {
			Permissions: map[string]bool{
				"stake":    true,
				"transfer": false,
				"withdraw": false,
			},
			Limits: map[string]Limit{
				"USDT": {Amount: decimal.NewFromInt(50000), Period: PeriodWeekly},
			},
		},
		"operations": {
			Permissions: map[string]bool{
				"trade":    false,
				"transfer": true,
				"withdraw": true,
			},
			Limits: map[string]Limit{
				"USDT": {Amount: decimal.NewFromInt(1000), Period: PeriodDaily},
			},
		},
	}
}

// CreateWallet creates a wallet for the agent merging the registered type
// profile with custom overrides. An unregistered type is accepted only when a
// full custom profile is supplied.
func (f *Factory) CreateWallet(
	agentID, name, walletType, purpose string,
	customPermissions map[string]bool, customLimits map[string]Limit,
) (Wallet, error) {
	if agentID == "" {
		return Wallet{}, ErrEmptyAgentID
	}
	if walletType == "" {
		walletType = "trading"
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	profile, registered := f.profiles[walletType]
	if !registered && (customPermissions == nil || customLimits == nil) {
		return Wallet{}, errors.Join(ErrUnknownWalletType, fmt.Errorf("wallet type %q", walletType))
	}

	permissions := make(map[string]bool, len(profile.Permissions))
	for k, v := range profile.Permissions {
		permissions[k] = v
	}
	for k, v := range customPermissions {
		permissions[k] = v
	}
	limits := make(map[string]Limit, len(profile.Limits))
	for k, v := range profile.Limits {
		limits[k] = v
	}
	for k, v := range customLimits {
		limits[k] = v
	}

	if name == "" {
		name = fmt.Sprintf("%s %s wallet", agentID, walletType)
	}
	now := time.Now()
	w := &Wallet{
		ID:          primitive.NewObjectID(),
		AgentID:     agentID,
		Name:        name,
		Type:        walletType,
		Purpose:     purpose,
		Permissions: permissions,
		Limits:      limits,
		Accounts:    make(map[string]ChainAccount),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id := w.ID.Hex()
	f.wallets[id] = w
	f.byAgent[agentID] = append(f.byAgent[agentID], id)
	if _, ok := f.primary[agentID]; !ok {
		f.primary[agentID] = id
	}

	f.log.Info(fmt.Sprintf("wallet %s of type %s created for agent %s", id, walletType, agentID))

	return w.copy(), nil
}

// GetWallet looks up a wallet by id.
func (f *Factory) GetWallet(walletID string) (Wallet, error) {
	f.mux.RLock()
	defer f.mux.RUnlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w.copy(), nil
}

// GetAgentWallets returns all wallets owned by the agent.
func (f *Factory) GetAgentWallets(agentID string) []Wallet {
	f.mux.RLock()
	defer f.mux.RUnlock()
	ids := f.byAgent[agentID]
	ws := make([]Wallet, 0, len(ids))
	for _, id := range ids {
		ws = append(ws, f.wallets[id].copy())
	}
	return ws
}

// AgentWallet returns the primary wallet of the agent, the first one created.
func (f *Factory) AgentWallet(agentID string) (Wallet, error) {
	f.mux.RLock()
	defer f.mux.RUnlock()
	id, ok := f.primary[agentID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return f.wallets[id].copy(), nil
}

// AgentWalletAddress resolves the primary wallet address of the agent on the
// given chain.
func (f *Factory) AgentWalletAddress(agentID, chainID string) (string, error) {
	f.mux.RLock()
	defer f.mux.RUnlock()
	id, ok := f.primary[agentID]
	if !ok {
		return "", ErrNotFound
	}
	acc, ok := f.wallets[id].Accounts[chainID]
	if !ok {
		return "", errors.Join(ErrNoChainAccount, fmt.Errorf("agent %s chain %s", agentID, chainID))
	}
	return acc.Address, nil
}

// UpdateWalletLimits overwrites the listed per asset limits of the wallet.
func (f *Factory) UpdateWalletLimits(walletID string, limits map[string]Limit) (Wallet, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	for k, v := range limits {
		w.Limits[k] = v
	}
	w.UpdatedAt = time.Now()
	return w.copy(), nil
}

// UpdateWalletPermissions overwrites the listed capabilities of the wallet.
func (f *Factory) UpdateWalletPermissions(walletID string, permissions map[string]bool) (Wallet, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	for k, v := range permissions {
		w.Permissions[k] = v
	}
	w.UpdatedAt = time.Now()
	return w.copy(), nil
}

// RegisterChainAccount registers a chain address for the wallet. A provided
// private key is sealed with the credential cipher before it is stored.
func (f *Factory) RegisterChainAccount(walletID, chainID, address string, privateKey []byte) (Wallet, error) {
	if address == "" {
		return Wallet{}, ErrEmptyAddress
	}
	var sealed []byte
	if len(privateKey) > 0 {
		var err error
		sealed, err = f.cipher.Encrypt(privateKey)
		if err != nil {
			return Wallet{}, err
		}
	}

	f.mux.Lock()
	defer f.mux.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	w.Accounts[chainID] = ChainAccount{Address: address, EncryptedKey: sealed}
	w.UpdatedAt = time.Now()
	return w.copy(), nil
}

// ListWalletTypes returns the names of all registered wallet type profiles.
func (f *Factory) ListWalletTypes() []string {
	f.mux.RLock()
	defer f.mux.RUnlock()
	names := make([]string, 0, len(f.profiles))
	for name := range f.profiles {
		names = append(names, name)
	}
	return names
}

// AddWalletType registers a new wallet type profile.
func (f *Factory) AddWalletType(name string, defaultPermissions map[string]bool, defaultLimits map[string]Limit) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	if _, ok := f.profiles[name]; ok {
		return errors.Join(ErrWalletTypeExists, fmt.Errorf("wallet type %q", name))
	}
	f.profiles[name] = Profile{Permissions: defaultPermissions, Limits: defaultLimits}
	return nil
}

func (w *Wallet) copy() Wallet {
	c := *w
	c.Permissions = make(map[string]bool, len(w.Permissions))
	for k, v := range w.Permissions {
		c.Permissions[k] = v
	}
	c.Limits = make(map[string]Limit, len(w.Limits))
	for k, v := range w.Limits {
		c.Limits[k] = v
	}
	c.Accounts = make(map[string]ChainAccount, len(w.Accounts))
	for k, v := range w.Accounts {
		c.Accounts[k] = v
	}
	return c
}

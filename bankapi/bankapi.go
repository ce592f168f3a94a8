package bankapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aurumlabs/custodia/logger"
)

const (
	ApiVersion = "1.0.0"
	Header     = "Custodia-Bank"
)

const (
	transactionGroupURL = "/transaction"
	vaultGroupURL       = "/vault"
	walletGroupURL      = "/wallet"
	transferGroupURL    = "/transfer"
	entityGroupURL      = "/entity"
	createURL           = "/create"
	approveURL          = "/approve"
	executeURL          = "/execute"
	rejectURL           = "/reject"
	pendingURL          = "/pending"
	recentURL           = "/recent"
	readURL             = "/read"
	freezeURL           = "/freeze"
	unfreezeURL         = "/unfreeze"
	keyAddURL           = "/key/add"
	keyRemoveURL        = "/key/remove"
	fundURL             = "/fund"
	agentURL            = "/agent"
	limitsURL           = "/limits"
	permissionsURL      = "/permissions"
	accountURL          = "/account"
	typesURL            = "/types"
	agentsURL           = "/agents"
	toVaultURL          = "/to-vault"
	fromVaultURL        = "/from-vault"
	crossChainURL       = "/cross-chain"
	statusURL           = "/status"
	balanceURL          = "/balance"
	statementURL        = "/statement"
)

// Public API routes, each maps to one bank method.
const (
	AliveURL                 = "/alive"
	CreateTransactionURL     = transactionGroupURL + createURL
	ApproveTransactionURL    = transactionGroupURL + approveURL
	ExecuteTransactionURL    = transactionGroupURL + executeURL
	RejectTransactionURL     = transactionGroupURL + rejectURL
	PendingTransactionsURL   = transactionGroupURL + pendingURL
	RecentTransactionsURL    = transactionGroupURL + recentURL
	ReadTransactionURL       = transactionGroupURL + readURL
	FreezeVaultURL           = vaultGroupURL + freezeURL
	UnfreezeVaultURL         = vaultGroupURL + unfreezeURL
	AddAuthorizedKeyURL      = vaultGroupURL + keyAddURL
	RemoveAuthorizedKeyURL   = vaultGroupURL + keyRemoveURL
	FundAgentWalletURL       = vaultGroupURL + fundURL
	CreateWalletURL          = walletGroupURL + createURL
	ReadWalletURL            = walletGroupURL + readURL
	AgentWalletsURL          = walletGroupURL + agentURL
	UpdateWalletLimitsURL    = walletGroupURL + limitsURL
	UpdateWalletPermsURL     = walletGroupURL + permissionsURL
	RegisterChainAccountURL  = walletGroupURL + accountURL
	WalletTypesURL           = walletGroupURL + typesURL
	TransferBetweenAgentsURL = transferGroupURL + agentsURL
	TransferToVaultURL       = transferGroupURL + toVaultURL
	TransferFromVaultURL     = transferGroupURL + fromVaultURL
	CrossChainTransferURL    = transferGroupURL + crossChainURL
	TransferStatusURL        = transferGroupURL + statusURL
	EntityBalanceURL         = entityGroupURL + balanceURL
	AccountStatementURL      = entityGroupURL + statementURL
)

var ErrWrongPortSpecified = errors.New("port must be between 1 and 65535")

// Config contains configuration of the server.
type Config struct {
	Port int `yaml:"port"`
}

type server struct {
	bank Banker
	log  logger.Logger
}

// Run initializes routing and runs the server. To stop the server cancel the
// context. It blocks until the context is canceled.
func Run(ctx context.Context, c Config, bank Banker, log logger.Logger) error {
	var err error
	ctxx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.Port < 1 || c.Port > 65535 {
		return ErrWrongPortSpecified
	}

	s := &server{bank: bank, log: log}

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   time.Second * 5,
		WriteTimeout:  time.Second * 5,
		ServerHeader:  Header,
		AppName:       ApiVersion,
	})
	router.Use(recover.New())

	router.Get(AliveURL, s.alive)

	trx := router.Group(transactionGroupURL)
	trx.Post(createURL, s.createTransaction)
	trx.Post(approveURL, s.approveTransaction)
	trx.Post(executeURL, s.executeTransaction)
	trx.Post(rejectURL, s.rejectTransaction)
	trx.Get(pendingURL, s.pendingTransactions)
	trx.Get(recentURL, s.recentTransactions)
	trx.Get(readURL+"/:id", s.readTransaction)

	vlt := router.Group(vaultGroupURL)
	vlt.Post(freezeURL, s.freezeVault)
	vlt.Post(unfreezeURL, s.unfreezeVault)
	vlt.Post(keyAddURL, s.addAuthorizedKey)
	vlt.Post(keyRemoveURL, s.removeAuthorizedKey)
	vlt.Post(fundURL, s.fundAgentWallet)

	wlt := router.Group(walletGroupURL)
	wlt.Post(createURL, s.createWallet)
	wlt.Get(readURL+"/:id", s.readWallet)
	wlt.Get(agentURL+"/:agent", s.agentWallets)
	wlt.Post(limitsURL, s.updateWalletLimits)
	wlt.Post(permissionsURL, s.updateWalletPermissions)
	wlt.Post(accountURL, s.registerChainAccount)
	wlt.Get(typesURL, s.walletTypes)
	wlt.Post(typesURL, s.addWalletType)

	trf := router.Group(transferGroupURL)
	trf.Post(agentsURL, s.transferBetweenAgents)
	trf.Post(toVaultURL, s.transferToVault)
	trf.Post(fromVaultURL, s.transferFromVault)
	trf.Post(crossChainURL, s.crossChainTransfer)
	trf.Get(statusURL+"/:id", s.transferStatus)

	ent := router.Group(entityGroupURL)
	ent.Get(balanceURL+"/:id", s.entityBalance)
	ent.Get(statementURL+"/:id", s.accountStatement)

	go func() {
		if errx := router.Listen(fmt.Sprintf("0.0.0.0:%v", c.Port)); errx != nil {
			err = errx
			cancel()
		}
	}()

	<-ctxx.Done()

	if errx := router.Shutdown(); errx != nil && err == nil {
		err = errx
	}
	return err
}

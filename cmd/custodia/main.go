package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/aurumlabs/custodia/aeswrapper"
	"github.com/aurumlabs/custodia/bank"
	"github.com/aurumlabs/custodia/bankapi"
	"github.com/aurumlabs/custodia/chainemu"
	"github.com/aurumlabs/custodia/configuration"
	"github.com/aurumlabs/custodia/ledger"
	"github.com/aurumlabs/custodia/logging"
	"github.com/aurumlabs/custodia/logo"
	"github.com/aurumlabs/custodia/natsclient"
	"github.com/aurumlabs/custodia/stdoutwriter"
	"github.com/aurumlabs/custodia/telemetry"
	"github.com/aurumlabs/custodia/transfer"
	"github.com/aurumlabs/custodia/vault"
	"github.com/aurumlabs/custodia/wallets"
)

const usage = `runs the Custodia vault banking node that custodies trading agent funds`

func main() {
	logo.Display()

	godotenv.Load()

	var file string
	configurator := func() (configuration.Configuration, error) {
		if file == "" {
			return configuration.Configuration{}, errors.New("please specify configuration file path with -c <path to file>")
		}

		cfg, err := configuration.Read(file)
		if err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	app := &cli.App{
		Name:  "custodia",
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Load configuration from `FILE`",
				Destination: &file,
			},
		},
		Action: func(_ *cli.Context) error {
			cfg, err := configurator()
			if err != nil {
				return err
			}
			run(cfg)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err.Error())
	}
}

func run(cfg configuration.Configuration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		cancel()
	}()

	callbackOnErr := func(err error) {
		fmt.Println("Error with logger: ", err)
	}

	log := logging.New(cfg.LogLevel, callbackOnErr, &stdoutwriter.Logger{})

	ldgr, err := ledger.New(ctx, cfg.Ledger, log)
	if err != nil {
		log.Error(err.Error())
		time.Sleep(time.Second)
		return
	}

	tele := telemetry.New()
	tele.CreateUpdateObservableCounter(vault.TelemetryTrxCreated, "Number of transactions created in the vault.")
	tele.CreateUpdateObservableCounter(vault.TelemetryTrxApproved, "Number of transaction approvals granted.")
	tele.CreateUpdateObservableCounter(vault.TelemetryTrxExecuted, "Number of transactions executed on chain.")
	tele.CreateUpdateObservableCounter(vault.TelemetryTrxFailed, "Number of transaction executions that failed.")
	tele.CreateUpdateObservableCounter(vault.TelemetryTrxRejected, "Number of transactions rejected.")
	tele.CreateUpdateObservableGauge(vault.TelemetryFrozenGauge, "Whether the vault is frozen, 1 frozen 0 operating.")

	go func() {
		if err := telemetry.Run(ctx, cancel, cfg.Telemetry); err != nil {
			log.Error(err.Error())
		}
	}()

	var pub vault.EventPublisher
	if cfg.Nats.Address != "" {
		natsPub, err := natsclient.PublisherConnect(cfg.Nats, log)
		if err != nil {
			log.Error(err.Error())
			time.Sleep(time.Second)
			return
		}
		defer func() {
			if err := natsPub.Disconnect(); err != nil {
				log.Error(err.Error())
			}
		}()
		pub = natsPub
	}

	chain := chainemu.New(cfg.Emulator)

	vlt, err := vault.New(cfg.Vault, ldgr, chain, pub, tele, log)
	if err != nil {
		log.Error(err.Error())
		time.Sleep(time.Second)
		return
	}

	key, err := hex.DecodeString(cfg.CipherKey)
	if err != nil {
		log.Error(fmt.Sprintf("cipher key is not valid hex: %s", err))
		time.Sleep(time.Second)
		return
	}
	cipher, err := aeswrapper.New(key)
	if err != nil {
		log.Error(err.Error())
		time.Sleep(time.Second)
		return
	}

	factory := wallets.NewFactory(cipher, log)

	network, err := transfer.New(cfg.Transfer, vlt, factory, log)
	if err != nil {
		log.Error(err.Error())
		time.Sleep(time.Second)
		return
	}

	b := bank.New(vlt, ldgr, factory, network, log)

	err = bankapi.Run(ctx, cfg.BankApi, b, log)
	if err != nil {
		log.Error(err.Error())
		time.Sleep(time.Second)
	}
	time.Sleep(time.Second)
}

package configuration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/aurumlabs/custodia/bankapi"
	"github.com/aurumlabs/custodia/chainemu"
	"github.com/aurumlabs/custodia/ledger"
	"github.com/aurumlabs/custodia/natsclient"
	"github.com/aurumlabs/custodia/telemetry"
	"github.com/aurumlabs/custodia/transfer"
	"github.com/aurumlabs/custodia/vault"
)

// Configuration is the main configuration of the application that corresponds to the *.yaml file
// that holds the configuration.
type Configuration struct {
	Vault     vault.Config      `yaml:"vault"`
	Ledger    ledger.Config     `yaml:"ledger"`
	Transfer  transfer.Config   `yaml:"transfer"`
	BankApi   bankapi.Config    `yaml:"bank_api"`
	Nats      natsclient.Config `yaml:"nats"`
	Telemetry telemetry.Config  `yaml:"telemetry"`
	Emulator  chainemu.Config   `yaml:"emulator"`
	CipherKey string            `yaml:"cipher_key"`
	LogLevel  string            `yaml:"log_level"`
}

// Read reads the configuration from the file and returns the Configuration with set fields according to the yaml setup.
func Read(path string) (Configuration, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}

	var main Configuration
	err = yaml.Unmarshal(buf, &main)
	if err != nil {
		return Configuration{}, fmt.Errorf("in file %q: %w", path, err)
	}

	return main, err
}

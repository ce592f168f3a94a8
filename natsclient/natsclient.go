package natsclient

import (
	"net/url"

	"github.com/nats-io/nats.go"
)

const (
	// PubSubTransactionEvents carries transaction lifecycle events.
	PubSubTransactionEvents string = "custodia.transaction.events"
	// PubSubFreezeEvents carries vault freeze and unfreeze events.
	PubSubFreezeEvents string = "custodia.vault.freeze"
)

// Config contains all arguments required to connect to the nats service.
type Config struct {
	Address string `yaml:"server_address"`
	Name    string `yaml:"client_name"`
	Token   string `yaml:"token"`
}

type socket struct {
	conn *nats.Conn
}

func connect(cfg Config) (*socket, error) {
	var err error
	_, err = url.Parse(cfg.Address)
	if err != nil {
		return nil, err
	}
	var s socket
	s.conn, err = nats.Connect(cfg.Address, nats.Name(cfg.Name), nats.Token(cfg.Token))
	return &s, err
}

// Disconnect drains the message queue and disconnects from the pub/sub.
// All subscriptions are immediately put in to a drain state and upon
// completion the publishers are drained and cannot publish anymore.
func (s *socket) Disconnect() error {
	return s.conn.Drain()
}

package natsclient

import (
	"encoding/json"
	"fmt"

	"github.com/aurumlabs/custodia/logger"
	"github.com/aurumlabs/custodia/vault"
)

// Publisher provides functionality to push vault events to the pub/sub queue.
// Publishing is non blocking, a marshal or publish failure is logged and dropped.
type Publisher struct {
	*socket
	log logger.Logger
}

// PublisherConnect connects a publisher to the pub/sub queue using the provided config.
func PublisherConnect(cfg Config, log logger.Logger) (*Publisher, error) {
	s, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{socket: s, log: log}, nil
}

// PublishTransactionEvent publishes a transaction lifecycle event.
func (p *Publisher) PublishTransactionEvent(ev vault.TransactionEvent) {
	p.publish(PubSubTransactionEvents, ev)
}

// PublishFreezeEvent publishes a vault freeze or unfreeze event.
func (p *Publisher) PublishFreezeEvent(ev vault.FreezeEvent) {
	p.publish(PubSubFreezeEvents, ev)
}

func (p *Publisher) publish(subject string, ev any) {
	msg, err := json.Marshal(ev)
	if err != nil {
		p.log.Error(fmt.Sprintf("nats publisher failed to marshal event for %s: %s", subject, err))
		return
	}
	if err := p.conn.Publish(subject, msg); err != nil {
		p.log.Error(fmt.Sprintf("nats publisher failed to publish to %s: %s", subject, err))
	}
}

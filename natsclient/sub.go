package natsclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/aurumlabs/custodia/logger"
	"github.com/aurumlabs/custodia/vault"
)

var ErrAlreadySubscribed = errors.New("already subscribed to the subject")

// Subscriber provides functionality to receive vault events from the pub/sub queue.
type Subscriber struct {
	*socket
	log  logger.Logger
	subs map[string]*nats.Subscription
}

// SubscriberConnect connects a subscriber to the pub/sub queue using the provided config.
func SubscriberConnect(cfg Config, log logger.Logger) (*Subscriber, error) {
	s, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{socket: s, log: log, subs: make(map[string]*nats.Subscription)}, nil
}

// SubscribeTransactionEvents subscribes the callback to transaction lifecycle events.
func (s *Subscriber) SubscribeTransactionEvents(call func(ev vault.TransactionEvent)) error {
	if _, ok := s.subs[PubSubTransactionEvents]; ok {
		return ErrAlreadySubscribed
	}
	sub, err := s.conn.Subscribe(PubSubTransactionEvents, func(m *nats.Msg) {
		var ev vault.TransactionEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			s.log.Error(fmt.Sprintf("nats subscriber failed to unmarshal transaction event: %s", err))
			return
		}
		call(ev)
	})
	if err != nil {
		return err
	}
	s.subs[PubSubTransactionEvents] = sub
	return nil
}

// SubscribeFreezeEvents subscribes the callback to vault freeze events.
func (s *Subscriber) SubscribeFreezeEvents(call func(ev vault.FreezeEvent)) error {
	if _, ok := s.subs[PubSubFreezeEvents]; ok {
		return ErrAlreadySubscribed
	}
	sub, err := s.conn.Subscribe(PubSubFreezeEvents, func(m *nats.Msg) {
		var ev vault.FreezeEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			s.log.Error(fmt.Sprintf("nats subscriber failed to unmarshal freeze event: %s", err))
			return
		}
		call(ev)
	})
	if err != nil {
		return err
	}
	s.subs[PubSubFreezeEvents] = sub
	return nil
}

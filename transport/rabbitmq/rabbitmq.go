// Package rabbitmq publishes relay events to an AMQP exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/imdario/mergo"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/types"
)

type Config struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL" env-description:"AMQP url, empty disables relay events"`
	Exchange   string        `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"mailrelay"`
	RoutingKey string        `yaml:"routing_key" env:"RABBITMQ_ROUTING_KEY" env-default:"relay.result"`
	Kind       string        `yaml:"kind" env:"RABBITMQ_EXCHANGE_KIND" env-default:"topic"`
	Timeout    time.Duration `yaml:"timeout" env:"RABBITMQ_TIMEOUT" env-default:"5s"`
}

func (c Config) Enabled() bool { return c.URL != "" }

var defaultConfig = Config{
	Exchange:   "mailrelay",
	RoutingKey: "relay.result",
	Kind:       amqp.ExchangeTopic,
	Timeout:    5 * time.Second,
}

// withDefaults fills the zero fields of cfg.
func withDefaults(cfg Config) (Config, error) {
	if err := mergo.Merge(&cfg, defaultConfig); err != nil {
		return cfg, errors.E(err)
	}
	return cfg, nil
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type EventsTransportImpl struct {
	cfg     Config
	con     *amqp.Connection
	channel func() (channel, error)
}

// NewRQTransport dials cfg.URL and declares the exchange.
func NewRQTransport(cfg Config) (*EventsTransportImpl, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Er(err, "rabbitmq: dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.E(err)
	}
	defer ch.Close()

	if err = ch.ExchangeDeclare(cfg.Exchange, cfg.Kind, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Er(err, "rabbitmq: declare exchange %s", cfg.Exchange)
	}
	t := &EventsTransportImpl{cfg: cfg, con: conn}
	t.channel = func() (channel, error) {
		if t.con.IsClosed() {
			return nil, errors.New("connection is closed")
		}
		return t.con.Channel()
	}
	return t, nil
}

// Publish sends ev as JSON to the configured exchange and routing key.
func (t *EventsTransportImpl) Publish(ctx context.Context, ev types.RelayEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.E(err)
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	ch, err := t.channel()
	if err != nil {
		return errors.E(err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, t.cfg.Exchange, t.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Time,
		Type:         "relay." + ev.Outcome,
		Body:         body,
	})
	return errors.Er(err, "rabbitmq: publish %s", ev.ID)
}

func (t *EventsTransportImpl) Close() error {
	if t.con == nil || t.con.IsClosed() {
		return nil
	}
	return errors.E(t.con.Close())
}

// Healthy reports an error once the broker connection is gone.
func (t *EventsTransportImpl) Healthy() error {
	if t.con == nil || t.con.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/streadway/amqp"
)

// AMQPConfig holds the broker settings. Events are not published when URL is empty.
type AMQPConfig struct {
	URL      string `envconfig:"FACECASCADE_AMQP_URL"`
	Exchange string `envconfig:"FACECASCADE_AMQP_EXCHANGE" default:"facecascade"`
}

// ReadAMQPConfig reads AMQPConfig from the environment.
func ReadAMQPConfig() (*AMQPConfig, error) {
	var cfg AMQPConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Routing keys of published events.
const (
	LayerRoutingKey = "training.layer"
	RunRoutingKey   = "training.finished"
)

// publisher is the part of *amqp.Channel the notifier uses.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes JSON events to a topic exchange.
type AMQPNotifier struct {
	exchange string
	channel  publisher
	conn     *amqp.Connection
}

// NewAMQPNotifier connects to the broker and declares the exchange.
func NewAMQPNotifier(cfg *AMQPConfig) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // delete when unused
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	return &AMQPNotifier{exchange: cfg.Exchange, channel: ch, conn: conn}, nil
}

func (n *AMQPNotifier) publish(key string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.channel.Publish(n.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// LayerCompleted implements Notifier.
func (n *AMQPNotifier) LayerCompleted(_ context.Context, e LayerEvent) error {
	return n.publish(LayerRoutingKey, e)
}

// TrainingFinished implements Notifier.
func (n *AMQPNotifier) TrainingFinished(_ context.Context, e RunEvent) error {
	return n.publish(RunRoutingKey, e)
}

// Close closes the broker connection.
func (n *AMQPNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// Package mqtt wraps the paho client with the small surface the platform
// layer needs: connect with a last-will availability topic, publish retained
// state, subscribe to command topics.
package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/config"
)

// Handler receives messages on a subscribed topic.
type Handler func(topic string, payload []byte)

// Publisher is the surface the platform layer uses to emit state. It keeps
// handlers testable without a live broker.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(topic string, handler Handler) error
	Unsubscribe(topic string) error
}

// Client is the broker connection.
type Client struct {
	cli mqtt.Client
	qos byte

	availabilityTopic string
}

// New builds a client from config. The connection is not established until
// Connect.
func New(cfg *config.MQTTConfig, availabilityTopic string) *Client {
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])
	qos := byte(cfg.QoS)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(cfg.Timeout.Duration()).
		SetWriteTimeout(cfg.Timeout.Duration()).
		// Keep the broker-side session so subscriptions survive reconnects.
		SetCleanSession(false).
		SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// The broker announces us offline if the process dies.
	opts.SetWill(availabilityTopic, "offline", qos, true)

	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Str("client_id", clientID).Msg("MQTT connected")
		c.Publish(availabilityTopic, qos, true, "online")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	return &Client{
		cli:               mqtt.NewClient(opts),
		qos:               qos,
		availabilityTopic: availabilityTopic,
	}
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	if t := c.cli.Connect(); t.Wait() && t.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", t.Error())
	}
	return nil
}

// Publish sends a payload to a topic.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	if t := c.cli.Publish(topic, c.qos, retain, payload); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

// Subscribe registers a handler for a topic filter.
func (c *Client) Subscribe(topic string, handler Handler) error {
	cb := func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	if t := c.cli.Subscribe(topic, c.qos, cb); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	log.Debug().Str("topic", topic).Msg("MQTT subscribed")
	return nil
}

// Unsubscribe drops a topic filter.
func (c *Client) Unsubscribe(topic string) error {
	if t := c.cli.Unsubscribe(topic); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	log.Debug().Str("topic", topic).Msg("MQTT unsubscribed")
	return nil
}

// Disconnect publishes the offline marker and closes the connection.
func (c *Client) Disconnect() {
	if c.cli.IsConnected() {
		c.cli.Publish(c.availabilityTopic, c.qos, true, "offline").Wait()
		c.cli.Disconnect(250)
	}
}

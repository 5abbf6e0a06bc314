package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMQTTClientID         = "scient-gateway"
	DefaultMQTTEnvironmentTopic = "scient/%s/environment"
	DefaultMQTTHealthTopic      = "scient/%s/health"
	DefaultMQTTPublishTimeout   = 5 * time.Second
)

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// Topic templates; %s is replaced with the device id.
	EnvironmentTopic string
	HealthTopic      string
	PublishTimeout   time.Duration
}

// publisher is the subset of mqtt.Client used for delivery.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each record as JSON on a per-device topic.
type MQTT struct {
	opts   MQTTOptions
	client mqtt.Client
	pub    publisher
}

func NewMQTT(opts MQTTOptions) *MQTT {
	if opts.ClientID == "" {
		opts.ClientID = DefaultMQTTClientID
	}

	if opts.EnvironmentTopic == "" {
		opts.EnvironmentTopic = DefaultMQTTEnvironmentTopic
	}

	if opts.HealthTopic == "" {
		opts.HealthTopic = DefaultMQTTHealthTopic
	}

	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultMQTTPublishTimeout
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info().Str("Broker", opts.Broker).Msg("relay: mqtt connected")
	})

	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("Broker", opts.Broker).Msg("relay: mqtt connection lost")
	})

	client := mqtt.NewClient(co)

	return &MQTT{opts: opts, client: client, pub: client}
}

// Connect starts the broker session. With connect retry enabled paho keeps trying in the
// background, so this only waits until ctx is done.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()

	for {
		if token.WaitTimeout(200 * time.Millisecond) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("relay: mqtt connect: %w", err)
			}

			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) Deliver(ctx context.Context, env Envelope) error {
	envErr := m.publish(ctx, EndpointEnvironment, fmt.Sprintf(m.opts.EnvironmentTopic, env.Environment.DeviceID), env.Environment)
	healthErr := m.publish(ctx, EndpointHealth, fmt.Sprintf(m.opts.HealthTopic, env.Health.DeviceID), env.Health)

	return errors.Join(envErr, healthErr)
}

func (m *MQTT) publish(ctx context.Context, endpoint, topic string, record any) (err error) {
	defer func() { observe(endpoint, err) }()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode %s record: %w", ErrDelivery, endpoint, err)
	}

	token := m.pub.Publish(topic, m.opts.QoS, false, data)

	select {
	case <-token.Done():
	case <-time.After(m.opts.PublishTimeout):
		return fmt.Errorf("%w: publish timeout for topic %s", ErrDelivery, topic)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDelivery, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrDelivery, topic, err)
	}

	log.Trace().
		Str("Endpoint", endpoint).
		Str("Topic", topic).
		RawJSON("Record", data).
		Msg("relay: record published")

	return nil
}

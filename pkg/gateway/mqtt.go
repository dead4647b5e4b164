package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQuiesce        = 500 // milliseconds
	mqttQoS            = 1
)

// MQTTOptions configures the MQTT transport.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicPrefix is prepended to "status", "action" and "online".
	TopicPrefix string
}

// mqttClient is the part of pahomqtt.Client the transport uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// MQTTTransport publishes the status as a retained message and receives
// actions on a subscribed topic. The most recent action wins.
type MQTTTransport struct {
	client mqttClient
	prefix string

	mu     sync.Mutex
	action string
}

// DialMQTT connects to the broker and subscribes to the action topic.
func DialMQTT(opts MQTTOptions) (*MQTTTransport, error) {
	prefix := strings.TrimSuffix(opts.TopicPrefix, "/")
	t := &MQTTTransport{prefix: prefix}

	o := pahomqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectTimeout(mqttConnectTimeout)
	o.SetWill(t.topic("online"), "false", mqttQoS, true)
	o.SetOnConnectHandler(func(c pahomqtt.Client) {
		// Subscriptions do not survive a clean session reconnect.
		c.Subscribe(t.topic("action"), mqttQoS, t.onAction)
		c.Publish(t.topic("online"), mqttQoS, true, "true")
		logrus.WithField("broker", opts.Broker).Info("connected to MQTT gateway")
	})
	o.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logrus.WithError(err).Warn("lost connection to MQTT gateway")
	})

	client := pahomqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout after %v", opts.Broker, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	t.client = client
	return t, nil
}

func (t *MQTTTransport) topic(name string) string {
	if t.prefix == "" {
		return name
	}
	return t.prefix + "/" + name
}

func (t *MQTTTransport) onAction(_ pahomqtt.Client, m pahomqtt.Message) {
	action := strings.TrimSpace(string(m.Payload()))
	if action == "" {
		return
	}
	logrus.WithField("action", action).Info("gateway action received")
	t.mu.Lock()
	t.action = action
	t.mu.Unlock()
}

// PushStatus implements Transport.
func (t *MQTTTransport) PushStatus(_ context.Context, s Status) error {
	if !t.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	token := t.client.Publish(t.topic("status"), mqttQoS, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish status: timeout after %v", mqttPublishTimeout)
	}
	return token.Error()
}

// PullAction implements Transport.
func (t *MQTTTransport) PullAction(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.action
	t.action = ""
	return a, nil
}

// Close implements Transport.
func (t *MQTTTransport) Close() error {
	if t.client.IsConnected() {
		token := t.client.Publish(t.topic("online"), mqttQoS, true, "false")
		token.WaitTimeout(mqttPublishTimeout)
	}
	t.client.Disconnect(mqttQuiesce)
	return nil
}

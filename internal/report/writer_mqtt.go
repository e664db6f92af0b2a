package report

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	"errors"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

func init() {
	RegisterWriter("mqtt", func(cfg *config.Config, def config.WriterDef) (model.Writer, error) {
		return NewMQTTWriter(cfg.MQTT)
	})
}

// MQTTWriter publishes every window report as protobuf JSON.
type MQTTWriter struct {
	client paho.Client
	topic  string
	qos    byte
}

// NewMQTTWriter connects to the broker.
func NewMQTTWriter(cfg config.MQTTConfig) (*MQTTWriter, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker URL is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "nsguard-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, errors.New("mqtt connection timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}
	log.Printf("Connected to MQTT broker at %s", cfg.Broker)

	return &MQTTWriter{client: client, topic: cfg.Topic, qos: cfg.QoS}, nil
}

func (w *MQTTWriter) Name() string { return "mqtt" }

func (w *MQTTWriter) Write(report *model.WindowReport) error {
	payload, err := probe.EncodeReportJSON(report)
	if err != nil {
		return err
	}
	token := w.client.Publish(w.topic, w.qos, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("timeout publishing to mqtt")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (w *MQTTWriter) Close() error {
	w.client.Disconnect(1000)
	return nil
}

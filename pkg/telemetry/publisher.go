// Package telemetry publishes periodic logs over MQTT and accepts remote
// plant configuration updates.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

const (
	qosLog    = 0
	qosConfig = 1

	connectTimeout = 10 * time.Second
	disconnectWait = 250 // ms
)

// Publisher sends telemetry logs and applies config updates.
type Publisher struct {
	cfg     config.MQTTConfig
	client  mqtt.Client
	store   *config.Store
	hub     *sensor.Hub
	outputs func() control.ActuatorOutputs
	log     *slog.Logger
	now     func() time.Time
}

// NewPublisher creates a publisher with its own broker client.
// outputs returns the latest actuator snapshot.
func NewPublisher(
	cfg config.MQTTConfig,
	store *config.Store,
	hub *sensor.Hub,
	outputs func() control.ActuatorOutputs,
	log *slog.Logger,
) *Publisher {
	p := newPublisher(cfg, nil, store, hub, outputs, log)
	p.client = mqtt.NewClient(p.clientOptions())
	return p
}

func newPublisher(
	cfg config.MQTTConfig,
	client mqtt.Client,
	store *config.Store,
	hub *sensor.Hub,
	outputs func() control.ActuatorOutputs,
	log *slog.Logger,
) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "growbox-" + uuid.NewString()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.Default().MQTT.Interval
	}
	if outputs == nil {
		outputs = func() control.ActuatorOutputs { return control.ActuatorOutputs{} }
	}

	return &Publisher{
		cfg:     cfg,
		client:  client,
		store:   store,
		hub:     hub,
		outputs: outputs,
		log:     log.With("broker", cfg.Broker),
		now:     time.Now,
	}
}

// clientOptions subscribes on every (re)connect.
func (p *Publisher) clientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warn("mqtt connection lost", "err", err)
		})
}

func (p *Publisher) onConnect(c mqtt.Client) {
	p.log.Info("mqtt connected", "client_id", p.cfg.ClientID)
	if p.cfg.ConfigTopic == "" {
		return
	}
	token := c.Subscribe(p.cfg.ConfigTopic, qosConfig, p.handleConfig)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("failed to subscribe", "topic", p.cfg.ConfigTopic, "err", err)
		return
	}
	p.log.Info("subscribed", "topic", p.cfg.ConfigTopic)
}

// Run connects and publishes every interval until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", p.cfg.Broker, err)
	}
	defer p.client.Disconnect(disconnectWait)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Publish(); err != nil {
				p.log.Warn("failed to publish telemetry", "err", err)
			}
		}
	}
}

// Publish sends one log record.
func (p *Publisher) Publish() error {
	payload, err := json.Marshal(BuildLog(p.hub.Snapshot(), p.outputs(), p.now()))
	if err != nil {
		return fmt.Errorf("error marshalling telemetry: %w", err)
	}

	token := p.client.Publish(p.cfg.LogTopic, qosLog, false, payload)
	token.Wait()
	return token.Error()
}

func (p *Publisher) handleConfig(_ mqtt.Client, msg mqtt.Message) {
	u, err := ParseConfigUpdate(msg.Payload())
	if err != nil {
		p.log.Warn("ignoring config update", "topic", msg.Topic(), "err", err)
		return
	}
	if u.Empty() {
		return
	}

	p.log.Info("applying config update", "topic", msg.Topic())
	if err := p.store.UpdatePlant(u.Apply); err != nil {
		p.log.Error("config update not persisted", "err", err)
	}
}

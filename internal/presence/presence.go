// Package presence publishes the agent's availability and activity to
// an MQTT broker so dashboards and automations can see whether Gen is
// online and whether she is busy thinking.
package presence

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/gendev/gen-agent/internal/config"
	"github.com/gendev/gen-agent/internal/events"
)

const (
	stateOnline  = "online"
	stateOffline = "offline"
	stateBusy    = "busy"
	stateIdle    = "idle"
)

// Publisher manages the MQTT connection and mirrors agent activity
// from the event bus onto retained broker topics.
type Publisher struct {
	cfg    config.MQTTConfig
	bus    *events.Bus
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

func New(cfg config.MQTTConfig, bus *events.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, bus: bus, logger: logger}
}

func (p *Publisher) baseTopic() string {
	return "gen/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) activityTopic() string {
	return p.baseTopic() + "/activity"
}

// activityState maps an agent event to the activity topic payload, or
// "" for events that do not change it.
func activityState(ev events.Event) string {
	if ev.Source != events.SourceAgent {
		return ""
	}
	switch ev.Kind {
	case events.KindRequestStart:
		return stateBusy
	case events.KindRequestComplete:
		return stateIdle
	}
	return ""
}

// Start connects to the broker and blocks mirroring bus events until
// ctx is cancelled. The broker keeps an offline will so a crash flips
// availability without our help.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte(stateOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected", "broker", p.cfg.Broker)
			p.publish(ctx, cm, p.availabilityTopic(), stateOnline)
			p.publish(ctx, cm, p.activityTopic(), stateIdle)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "gen-" + p.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}

	p.mirror(ctx)
	return nil
}

// mirror consumes bus events until ctx is cancelled.
func (p *Publisher) mirror(ctx context.Context) {
	sub := p.bus.Subscribe(16)
	defer p.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if state := activityState(ev); state != "" {
				p.publish(ctx, p.cm, p.activityTopic(), state)
			}
		}
	}
}

// Stop publishes offline availability and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publish(ctx, p.cm, p.availabilityTopic(), stateOffline)
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) publish(ctx context.Context, cm *autopaho.ConnectionManager, topic, payload string) {
	if cm == nil {
		return
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: []byte(payload),
		QoS:     1,
		Retain:  true,
	})
	if err != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

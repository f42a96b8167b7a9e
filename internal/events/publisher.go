// Package events publishes relay lifecycle events to NATS so downstream
// services (notifications, analytics) can react without polling the API.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"yls-backend/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Relay event subjects
const (
	SubjectStakeSubmitted = "relay.stake.submitted"
	SubjectStakeConfirmed = "relay.stake.confirmed"
	SubjectStakeFailed    = "relay.stake.failed"
)

// RelayEvent is the payload published on every relay lifecycle transition
type RelayEvent struct {
	TxID      string    `json:"tx_id"`
	User      string    `json:"user"`
	PoolID    uint64    `json:"pool_id"`
	Amount    string    `json:"amount"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is a thin NATS wrapper. A nil Publisher is valid and drops all
// events, so callers never need to guard for the no-NATS configuration.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS. Returns (nil, nil) when no URL is
// configured: events are then disabled rather than fatal.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	if cfg.URL == "" {
		logrus.Info("ℹ️ [Events] NATS not configured, relay events disabled")
		return nil, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait)*time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logrus.WithError(err).Warn("⚠️ [Events] NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.WithField("url", nc.ConnectedUrl()).Info("✅ [Events] NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logrus.WithField("url", cfg.URL).Info("✅ [Events] NATS connected")
	return &Publisher{conn: conn}, nil
}

// Publish sends an event; publish failures are logged, never propagated,
// because events are advisory and must not fail the relay pipeline.
func (p *Publisher) Publish(subject string, event *RelayEvent) {
	if p == nil || p.conn == nil {
		return
	}

	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("❌ [Events] Failed to marshal relay event")
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		logrus.WithError(err).WithField("subject", subject).Warn("⚠️ [Events] Publish failed")
	}
}

// Close drains and closes the connection
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

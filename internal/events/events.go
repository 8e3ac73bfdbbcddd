// Package events publishes entity status transitions to subscribers outside the process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pulseboard/pulseboard/backend/internal/logger"
)

// SubjectPrefix is followed by the entity kind, e.g. "pulseboard.status.component".
const SubjectPrefix = "pulseboard.status."

// StatusChanged is emitted after a status change is committed.
type StatusChanged struct {
	Kind           string    `json:"kind"`
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Message        string    `json:"message,omitempty"`
	At             time.Time `json:"at"`
}

// Subject returns the NATS subject for the event.
func (e StatusChanged) Subject() string {
	return SubjectPrefix + e.Kind
}

// Publisher sends status change events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, evt StatusChanged) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishStatusChanged(context.Context, StatusChanged) error { return nil }
func (Noop) Close() error { return nil }

// NATSPublisher publishes events with core NATS.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to url with reconnects enabled.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("pulseboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Log().WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log().WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) PublishStatusChanged(_ context.Context, evt StatusChanged) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(evt.Subject(), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// Package events publishes bet lifecycle events to NATS for downstream
// consumers such as accounting and risk monitoring.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"casino-engine/internal/models"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	sourceService = "casino-engine"
	// SubjectRoundCrashed is appended to the prefix for live crash results.
	SubjectRoundCrashed = "round.crashed"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

type RoundCrashed struct {
	BetID      string          `json:"bet_id"`
	UserID     int64           `json:"user_id"`
	CrashPoint decimal.Decimal `json:"crash_point"`
}

// Publisher sends settlement and crash events. Multiplier ticks stay on the
// websocket and are not published.
type Publisher struct {
	conn   Conn
	prefix string
}

func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(sourceService),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.WithField("url", url).Info("Connected to NATS")
	return NewPublisher(nc, prefix), nil
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix}
}

func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *Publisher) publish(eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		SourceService: sourceService,
		Payload:       body,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := p.Subject(eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"event_type": eventType,
		"event_id":   envelope.EventID,
		"subject":    subject,
	}).Debug("Published event")
	return nil
}

func (p *Publisher) BroadcastGameUpdate(string, int64, decimal.Decimal) {}

func (p *Publisher) BroadcastGameCrash(betID string, userID int64, crashPoint decimal.Decimal) {
	err := p.publish(SubjectRoundCrashed, RoundCrashed{BetID: betID, UserID: userID, CrashPoint: crashPoint})
	if err != nil {
		log.WithError(err).WithField("bet_id", betID).Warn("Failed to publish crash event")
	}
}

// BroadcastSettlement publishes a settled or voided bet. Publishing is best
// effort; the ledger is the record.
func (p *Publisher) BroadcastSettlement(event models.BetEvent) {
	if err := p.publish(string(event.Type), event); err != nil {
		log.WithError(err).WithField("bet_id", event.BetID).Warn("Failed to publish settlement event")
	}
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

const eventProducer = "feishu-market-bot"

// EventMeta describes an emitted event
type EventMeta struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Producer string    `json:"producer"`
}

// EventEnvelope is the message body published to the exchange
type EventEnvelope struct {
	Meta EventMeta           `json:"meta"`
	Data domain.ListingEvent `json:"data"`
}

// NewEventEnvelope wraps a listing event with fresh metadata
func NewEventEnvelope(ev domain.ListingEvent) EventEnvelope {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return EventEnvelope{
		Meta: EventMeta{
			ID:       uuid.NewString(),
			Type:     ev.Type,
			Time:     at,
			Producer: eventProducer,
		},
		Data: ev,
	}
}

// amqpEventRepo publishes listing events to a topic exchange
type amqpEventRepo struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

// AMQPEventRepo is an EventRepo that owns a broker connection
type AMQPEventRepo interface {
	repo.EventRepo
	Close() error
}

// NewAMQPEventRepo dials the broker and declares the exchange
func NewAMQPEventRepo(url, exchange string) (AMQPEventRepo, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &amqpEventRepo{
		conn:     conn,
		exchange: exchange,
		log:      log.With().Str("component", "events").Logger(),
	}, nil
}

// Emit publishes one event with the event type as routing key
func (r *amqpEventRepo) Emit(ctx context.Context, ev domain.ListingEvent) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	env := NewEventEnvelope(ev)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = ch.PublishWithContext(ctx, r.exchange, ev.Type, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.Meta.ID,
			Timestamp:    env.Meta.Time,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	r.log.Debug().Str("key", ev.Type).Str("listing_id", ev.ListingID).Msg("event published")
	return nil
}

// Close closes the broker connection
func (r *amqpEventRepo) Close() error {
	return r.conn.Close()
}

type nopEventRepo struct{}

// NopEventRepo drops every event. Used when no broker is configured.
func NopEventRepo() repo.EventRepo {
	return nopEventRepo{}
}

func (nopEventRepo) Emit(context.Context, domain.ListingEvent) error { return nil }

// Package broker forwards stored notifications to a RabbitMQ topic exchange so that mail and push
// gateways outside this service can fan them out further.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/facility-booking/internal/application"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the JSON body of every published notification.
type Message struct {
	ID            string     `json:"id"`
	RecipientID   string     `json:"recipient_id"`
	Kind          string     `json:"kind"`
	ReservationID *string    `json:"reservation_id,omitempty"`
	ReportID      *string    `json:"report_id,omitempty"`
	Floor         string     `json:"floor,omitempty"`
	Message       string     `json:"message"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

// RoutingKey is the topic a notification of kind is published under, e.g.
// "notification.reservation_approved".
func RoutingKey(kind application.EventKind) string {
	return "notification." + strings.ToLower(string(kind))
}

// Publisher is an application.Notifier writing to a durable topic exchange.
type Publisher struct {
	mu       sync.Mutex
	channel  Channel
	conn     *amqp.Connection
	exchange string
	now      func() time.Time
}

// NewPublisher declares exchange on channel and returns a publisher using it.
func NewPublisher(channel Channel, exchange string, now func() time.Time) (*Publisher, error) {
	if strings.TrimSpace(exchange) == "" {
		return nil, fmt.Errorf("broker: exchange is required")
	}
	if now == nil {
		now = time.Now
	}
	if err := channel.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return nil, fmt.Errorf("broker: declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: channel, exchange: exchange, now: now}, nil
}

// Dial connects to url and returns a publisher that owns the connection.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker: dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}
	publisher, err := NewPublisher(channel, exchange, time.Now)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	publisher.conn = conn
	return publisher, nil
}

// Notify publishes notification as a persistent JSON message.
func (p *Publisher) Notify(ctx context.Context, notification application.Notification) error {
	body, err := json.Marshal(Message{
		ID:            notification.ID,
		RecipientID:   notification.RecipientID,
		Kind:          string(notification.Kind),
		ReservationID: notification.ReservationID,
		ReportID:      notification.ReportID,
		Floor:         notification.Floor,
		Message:       notification.Message,
		CreatedAt:     notification.CreatedAt.UTC(),
		ReadAt:        notification.ReadAt,
	})
	if err != nil {
		return fmt.Errorf("broker: encode notification %s: %w", notification.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(notification.Kind),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    notification.ID,
			Timestamp:    p.now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("broker: publish notification %s: %w", notification.ID, err)
	}
	return nil
}

// Close releases the channel and, when the publisher dialled it, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ application.Notifier = (*Publisher)(nil)

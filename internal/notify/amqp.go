package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// AMQPSender publishes each notification as JSON to a topic exchange with
// the notification type as routing key, so downstream consumers (mail,
// push) can bind only to what they need.
type AMQPSender struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPSender dials url and declares exchange as a durable topic exchange.
func NewAMQPSender(url, exchange string) (*AMQPSender, error) {
	s := &AMQPSender{url: url, exchange: exchange}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AMQPSender) connect() error {
	conn, err := amqp.DialConfig(s.url, amqp.Config{Heartbeat: 30 * time.Second, Locale: "en_US"})
	if err != nil {
		return fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("amqp: declare exchange %s: %w", s.exchange, err)
	}
	s.conn, s.ch = conn, ch
	return nil
}

// Send publishes n. A closed connection is re-dialled once.
func (s *AMQPSender) Send(_ context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("amqp: marshal notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.IsClosed() {
		if err := s.connect(); err != nil {
			return err
		}
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    n.Timestamp,
		Type:         string(n.Type),
		Body:         body,
	}
	if err := s.ch.Publish(s.exchange, string(n.Type), false, false, msg); err != nil {
		return fmt.Errorf("amqp: publish %s: %w", n.Type, err)
	}
	return nil
}

func (s *AMQPSender) Name() string { return "amqp" }

// Close closes the channel and connection.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.ch.Close()
	err := s.conn.Close()
	s.conn, s.ch = nil, nil
	return err
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"cardflow/internal/domain"
)

const exchange = "cardflow.events"

// AMQPNotifier publishes TransactionSucceeded events to a durable topic
// exchange. Routing key carries the kind, e.g.
// transaction.succeeded.card_purchase, so the card-send and top-up consumers
// can bind separately.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPNotifier{conn: conn, channel: ch}, nil
}

func (n *AMQPNotifier) TransactionSucceeded(ctx context.Context, event domain.TransactionSucceeded) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	routingKey := "transaction.succeeded." + strings.ToLower(string(event.Kind))
	return n.channel.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.TransactionID.String(),
		},
	)
}

func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdv/backend/internal/domain"
)

// Publisher announces committed domain changes. Callers publish only after
// the change is durable and treat failures as non-fatal.
type Publisher interface {
	SaleCompleted(ctx context.Context, sale domain.Sale) error
	SaleCancelled(ctx context.Context, sale domain.Sale) error
	StockMovementRecorded(ctx context.Context, movement domain.StockMovement) error
	StockLow(ctx context.Context, alert domain.LowStockAlert) error
	Close() error
}

type Noop struct{}

func (Noop) SaleCompleted(context.Context, domain.Sale) error { return nil }
func (Noop) SaleCancelled(context.Context, domain.Sale) error { return nil }
func (Noop) StockMovementRecorded(context.Context, domain.StockMovement) error { return nil }
func (Noop) StockLow(context.Context, domain.LowStockAlert) error { return nil }
func (Noop) Close() error { return nil }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitPublisher struct {
	ch       channel
	producer string
	now      func() time.Time
}

func NewRabbitPublisher(conn *amqp.Connection, producer string) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return newRabbitPublisher(ch, producer), nil
}

func newRabbitPublisher(ch channel, producer string) *RabbitPublisher {
	if producer == "" {
		producer = defaultProducer
	}
	return &RabbitPublisher{
		ch:       ch,
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *RabbitPublisher) Close() error {
	return p.ch.Close()
}

func (p *RabbitPublisher) SaleCompleted(ctx context.Context, sale domain.Sale) error {
	return p.publish(ctx, SaleCompletedRoutingKey, EventTypeSaleCompleted, sale.ID, saleCompletedPayload(sale))
}

func (p *RabbitPublisher) SaleCancelled(ctx context.Context, sale domain.Sale) error {
	at := p.now()
	if sale.CancelledAt != nil {
		at = *sale.CancelledAt
	}
	return p.publish(ctx, SaleCancelledRoutingKey, EventTypeSaleCancelled, sale.ID, SaleCancelledPayload{
		SaleID:      sale.ID,
		CancelledBy: sale.CancelledBy,
		FinalAmount: sale.FinalAmount,
		CancelledAt: at,
	})
}

func (p *RabbitPublisher) StockMovementRecorded(ctx context.Context, movement domain.StockMovement) error {
	return p.publish(ctx, StockMovementRoutingKey, EventTypeStockMovement, movement.ProductID, StockMovementPayload{
		MovementID:       movement.ID,
		ProductID:        movement.ProductID,
		MovementType:     movement.Type,
		Quantity:         movement.Quantity,
		PreviousQuantity: movement.PreviousQuantity,
		NewQuantity:      movement.NewQuantity,
		SaleID:           movement.SaleID,
		RecordedAt:       movement.CreatedAt,
	})
}

func (p *RabbitPublisher) StockLow(ctx context.Context, alert domain.LowStockAlert) error {
	return p.publish(ctx, StockLowRoutingKey, EventTypeStockLow, alert.ProductID, StockLowPayload{
		ProductID:       alert.ProductID,
		ProductName:     alert.ProductName,
		CurrentQuantity: alert.CurrentQuantity,
		MinStock:        alert.MinStock,
		AlertLevel:      alert.AlertLevel,
	})
}

func (p *RabbitPublisher) publish(ctx context.Context, routingKey string, name string, partitionKey string, payload any) error {
	env, err := newEnvelope(name, partitionKey, p.producer, payload, p.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", name, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID,
			Timestamp:    env.OccurredAt,
			Type:         name,
			Body:         body,
		},
	)
}

package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange          = "pdv.events"
	SaleCompletedRoutingKey = "sale.completed.v1"
	SaleCancelledRoutingKey = "sale.cancelled.v1"
	StockMovementRoutingKey = "stock.movement.v1"
	StockLowRoutingKey      = "stock.low.v1"
	defaultProducer         = "pdv-backend"
)

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

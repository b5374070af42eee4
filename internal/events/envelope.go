package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
)

const (
	EventTypeSaleCompleted = "SaleCompleted"
	EventTypeSaleCancelled = "SaleCancelled"
	EventTypeStockMovement = "StockMovementRecorded"
	EventTypeStockLow      = "StockLow"
)

// EventEnvelope wraps every published payload.
type EventEnvelope struct {
	EventName    string          `json:"eventName"`
	EventVersion int             `json:"eventVersion"`
	EventID      string          `json:"eventId"`
	Producer     string          `json:"producer"`
	PartitionKey string          `json:"partitionKey"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Payload      json.RawMessage `json:"payload"`
}

func (e EventEnvelope) Validate(expectedName string) error {
	if e.EventName != expectedName {
		return fmt.Errorf("unexpected eventName %q", e.EventName)
	}
	if e.EventVersion != 1 {
		return fmt.Errorf("unexpected eventVersion %d", e.EventVersion)
	}
	if e.PartitionKey == "" {
		return fmt.Errorf("missing partitionKey")
	}
	if e.EventID == "" {
		return fmt.Errorf("missing eventId")
	}
	return nil
}

type SaleLine struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	NetTotal  decimal.Decimal `json:"netTotal"`
}

type SaleCompletedPayload struct {
	SaleID        string               `json:"saleId"`
	OperatorID    string               `json:"operatorId"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	FinalAmount   decimal.Decimal      `json:"finalAmount"`
	Items         []SaleLine           `json:"items"`
	CompletedAt   time.Time            `json:"completedAt"`
}

type SaleCancelledPayload struct {
	SaleID      string          `json:"saleId"`
	CancelledBy string          `json:"cancelledBy"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
	CancelledAt time.Time       `json:"cancelledAt"`
}

type StockMovementPayload struct {
	MovementID       string              `json:"movementId"`
	ProductID        string              `json:"productId"`
	MovementType     domain.MovementType `json:"movementType"`
	Quantity         decimal.Decimal     `json:"quantity"`
	PreviousQuantity decimal.Decimal     `json:"previousQuantity"`
	NewQuantity      decimal.Decimal     `json:"newQuantity"`
	SaleID           string              `json:"saleId,omitempty"`
	RecordedAt       time.Time           `json:"recordedAt"`
}

type StockLowPayload struct {
	ProductID       string            `json:"productId"`
	ProductName     string            `json:"productName"`
	CurrentQuantity decimal.Decimal   `json:"currentQuantity"`
	MinStock        decimal.Decimal   `json:"minStock"`
	AlertLevel      domain.AlertLevel `json:"alertLevel"`
}

func newEnvelope(name string, partitionKey string, producer string, payload any, occurredAt time.Time) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return EventEnvelope{
		EventName:    name,
		EventVersion: 1,
		EventID:      uuid.NewString(),
		Producer:     producer,
		PartitionKey: partitionKey,
		OccurredAt:   occurredAt,
		Payload:      raw,
	}, nil
}

func saleCompletedPayload(sale domain.Sale) SaleCompletedPayload {
	payload := SaleCompletedPayload{
		SaleID:        sale.ID,
		OperatorID:    sale.OperatorID,
		PaymentMethod: sale.PaymentMethod,
		FinalAmount:   sale.FinalAmount,
		Items:         make([]SaleLine, 0, len(sale.Items)),
		CompletedAt:   sale.CreatedAt,
	}
	for _, item := range sale.Items {
		payload.Items = append(payload.Items, SaleLine{
			ProductID: item.ProductID,
			Quantity:  item.EffectiveQuantity(),
			NetTotal:  item.NetTotal,
		})
	}
	return payload
}

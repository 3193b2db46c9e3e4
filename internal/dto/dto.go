// dto.go
package dto

import (
	"time"

	"dissonant-backend/internal/tracking"
)

// ShippoWebhookRequest es el body que manda Shippo a /shippo-webhook.
type ShippoWebhookRequest struct {
	Event string            `json:"event"`
	Data  ShippoWebhookData `json:"data"`
}

// ShippoWebhookData embebe el payload crudo de estado: los campos de
// tracking.RawStatus quedan inline en el JSON.
type ShippoWebhookData struct {
	TrackingNumber string `json:"tracking_number"`
	ObjectID       string `json:"object_id"`
	tracking.RawStatus
}

// CheckOrderStatusRequest es el body de /check-order-status (chequeo manual).
type CheckOrderStatusRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
	OrderID        string `json:"order_id"`
	Carrier        string `json:"carrier"`
}

// ReconcileResponse es lo que devuelven el webhook y el chequeo manual.
type ReconcileResponse struct {
	TrackingNumber string    `json:"trackingNumber"`
	OrderStatus    string    `json:"orderStatus"`
	Description    string    `json:"description"`
	UpdatedOrders  []string  `json:"updatedOrders"`
	Timestamp      time.Time `json:"timestamp"`
}

// RetryLabelsRequest filtra el retry masivo a una sola orden si se pasa.
type RetryLabelsRequest struct {
	OrderID string `json:"order_id"`
	DryRun  bool   `json:"dry_run"`
}

// RetryLabelsResponse resume el resultado del retry masivo.
type RetryLabelsResponse struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"`
}

// RegisterTrackingResponse resume el backfill de tracking en el courier.
type RegisterTrackingResponse struct {
	Registered int      `json:"registered"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
}

// StaleDeliveredUser agrupa por usuario las órdenes entregadas hace
// más de un mes que nunca pasaron a kept/returned.
type StaleDeliveredUser struct {
	UserID     string                `json:"userId"`
	Email      string                `json:"email"`
	OrderCount int                   `json:"orderCount"`
	Orders     []StaleDeliveredOrder `json:"orders"`
}

type StaleDeliveredOrder struct {
	OrderID       string     `json:"orderId"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	DaysDelivered int        `json:"daysDelivered"`
}

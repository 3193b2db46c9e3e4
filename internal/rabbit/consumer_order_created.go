package rabbit

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"dissonant-backend/internal/service"
)

// OrderCreatedConsumer procesa el evento de orden creada. Dos efectos:
// el push al curador asignado (si hay) y el disparo server-side de la
// creación de etiquetas, detrás del guard de idempotencia.
type OrderCreatedConsumer struct {
	Labels *service.LabelService
	Users  service.UserRepository
	Push   service.Notifier
}

func NewOrderCreatedConsumer(labels *service.LabelService, users service.UserRepository, push service.Notifier) *OrderCreatedConsumer {
	return &OrderCreatedConsumer{Labels: labels, Users: users, Push: push}
}

type OrderCreatedMessage struct {
	CorrelationID string `json:"correlation_id"`
	Exchange      string `json:"exchange"`
	RoutingKey    string `json:"routing_key"`
	Message       struct {
		OrderID      string `json:"orderId"`
		UserID       string `json:"userId"`
		CuratorID    string `json:"curatorId"`
		CustomerName string `json:"customerName"`
		// Dirección como texto libre; el primer renglón es el nombre.
		Address string `json:"address"`
	} `json:"message"`
}

func (c *OrderCreatedConsumer) Handle(msg []byte) error {
	log.Println("[Rabbit] Evento recibido: order_placed")

	var event OrderCreatedMessage
	if err := json.Unmarshal(msg, &event); err != nil {
		log.Println("Error parseando mensaje:", err)
		return err
	}

	ctx := context.Background()
	orderID := event.Message.OrderID

	// 1. Push al curador. Sin curador o sin token es un skip logueado,
	// nunca un error: el push es best-effort.
	c.notifyCurator(ctx, event)

	// 2. Creación de etiquetas. El guard relee la orden y decide si hay
	// algo que hacer; si la app ya la disparó, esto no hace nada.
	if err := c.Labels.EnsureLabels(ctx, orderID); err != nil {
		log.Println("❌ Error creando etiquetas para orden", orderID+":", err)
		return err
	}

	log.Println("✔ Evento procesado para orden:", orderID)
	return nil
}

func (c *OrderCreatedConsumer) notifyCurator(ctx context.Context, event OrderCreatedMessage) {
	curatorID := event.Message.CuratorID
	if curatorID == "" {
		log.Printf("[Rabbit] orden %s sin curador asignado, no se notifica", event.Message.OrderID)
		return
	}

	curator, err := c.Users.FindByID(ctx, curatorID)
	if err != nil {
		log.Printf("[Rabbit] curador %s no encontrado: %v", curatorID, err)
		return
	}
	if curator.FCMToken == "" {
		log.Printf("[Rabbit] curador %s sin token FCM, no se notifica", curatorID)
		return
	}

	customerName := event.Message.CustomerName
	if customerName == "" && event.Message.Address != "" {
		// Primer renglón de la dirección como fallback del nombre.
		customerName = strings.TrimSpace(strings.Split(event.Message.Address, "\n")[0])
	}

	if err := c.Push.NotifyCuratorAssignment(ctx, curator.FCMToken, event.Message.OrderID, curatorID, customerName); err != nil {
		log.Printf("❌ [Rabbit] error mandando push al curador %s: %v", curatorID, err)
	}
}

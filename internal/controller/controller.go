package controller

import (
	"context"
	"net/http"
	"time"

	"dissonant-backend/internal/dto"
	"dissonant-backend/internal/model"
	"dissonant-backend/internal/service"
	"dissonant-backend/internal/tracking"

	"github.com/gin-gonic/gin"
)

// CourierGateway es lo que el controller necesita del cliente de courier.
type CourierGateway interface {
	GetTrackingStatus(ctx context.Context, carrier, trackingNumber string) (*tracking.RawStatus, error)
	RegisterTracking(ctx context.Context, carrier, trackingNumber, metadata string) error
}

type OrderController struct {
	Reconciler *service.ReconcilerService
	Labels     *service.LabelService
	Courier    CourierGateway
}

func NewOrderController(r *service.ReconcilerService, l *service.LabelService, c CourierGateway) *OrderController {
	return &OrderController{Reconciler: r, Labels: l, Courier: c}
}

// Eventos de Shippo que disparan reconciliación. Los transaction_* se
// reconocen pero no hacen nada (son confirmaciones de compra de etiqueta).
var trackedEvents = map[string]bool{
	"track_updated":    true,
	"tracking_updated": true,
	"shipment_updated": true,
}

var ackOnlyEvents = map[string]bool{
	"transaction_created": true,
	"transaction_updated": true,
}

// POST /shippo-webhook — No requiere token (el carrier no puede loguearse).
// Siempre 200 salvo fallo interno: un 500 hace que Shippo reintente solo.
func (ctl *OrderController) ShippoWebhook(c *gin.Context) {
	var req dto.ShippoWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Payload deforme: se reconoce igual, reintentar no lo va a arreglar.
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "unparseable payload, ignored"})
		return
	}

	if ackOnlyEvents[req.Event] || !trackedEvents[req.Event] {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "event acknowledged"})
		return
	}

	if req.Data.TrackingNumber == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "no tracking number in payload"})
		return
	}

	res, err := ctl.Reconciler.Reconcile(c.Request.Context(), req.Data.TrackingNumber, req.Data.RawStatus, "", "webhook")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "tracking update processed",
		"result":  toReconcileResponse(res),
	})
}

// POST /check-order-status — chequeo manual: consulta al courier y
// reconcilia en forma síncrona.
func (ctl *OrderController) CheckOrderStatus(c *gin.Context) {
	var req dto.CheckOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	carrier := req.Carrier
	if carrier == "" {
		carrier = "usps"
	}

	raw, err := ctl.Courier.GetTrackingStatus(c.Request.Context(), carrier, req.TrackingNumber)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	res, err := ctl.Reconciler.Reconcile(c.Request.Context(), req.TrackingNumber, *raw, req.OrderID, "manual")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toReconcileResponse(res))
}

// POST /orders/:orderId/labels — disparo de creación de etiquetas desde
// la app. El guard de idempotencia decide si hay algo que hacer.
func (ctl *OrderController) CreateLabels(c *gin.Context) {
	orderID := c.Param("orderId")

	if err := ctl.Labels.EnsureLabels(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "label creation ensured"})
}

// POST /orders/:orderId/keep — el cliente se queda con los discos.
func (ctl *OrderController) KeepOrder(c *gin.Context) {
	ctl.confirmOutcome(c, model.StatusKept)
}

// POST /orders/:orderId/confirm-return — retorno recibido y confirmado.
func (ctl *OrderController) ConfirmReturn(c *gin.Context) {
	ctl.confirmOutcome(c, model.StatusReturnedConfirmed)
}

func (ctl *OrderController) confirmOutcome(c *gin.Context, outcome string) {
	orderID := c.Param("orderId")

	err := ctl.Reconciler.ConfirmOutcome(c.Request.Context(), orderID, outcome)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "status updated"})
}

// POST /admin/labels/retry — re-corre el guard sobre las órdenes sin etiqueta.
func (ctl *OrderController) RetryFailedLabels(c *gin.Context) {
	var req dto.RetryLabelsRequest
	// Body vacío = retry masivo, no es error.
	_ = c.ShouldBindJSON(&req)

	sum, err := ctl.Labels.RetryPending(c.Request.Context(), req.OrderID, req.DryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.RetryLabelsResponse{
		Processed: sum.Processed,
		Succeeded: sum.Succeeded,
		Skipped:   sum.Skipped,
		Failed:    sum.Failed,
	})
}

// POST /admin/tracking/register — registra en el courier los tracking
// numbers de órdenes sent/labelCreated para que empiecen a llegar webhooks.
func (ctl *OrderController) RegisterTracking(c *gin.Context) {
	orders, err := ctl.Reconciler.GetByStatuses(c.Request.Context(), []string{model.StatusSent, model.StatusLabelCreated})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var resp dto.RegisterTrackingResponse
	for _, o := range orders {
		tn := o.AnyTrackingNumber()
		if tn == "" {
			resp.Skipped++
			continue
		}

		carrier := "usps"
		if o.ShippingLabels.OutboundLabel != nil && o.ShippingLabels.OutboundLabel.Carrier != "" {
			carrier = o.ShippingLabels.OutboundLabel.Carrier
		}

		meta := "Backfill - Order " + o.ID
		if err := ctl.Courier.RegisterTracking(c.Request.Context(), carrier, tn, meta); err != nil {
			resp.Failed = append(resp.Failed, o.ID)
			continue
		}
		resp.Registered++
	}

	c.JSON(http.StatusOK, resp)
}

// GET /admin/orders/stale-delivered — órdenes entregadas hace más de 30
// días que nunca pasaron a kept/returned, agrupadas por usuario.
func (ctl *OrderController) StaleDelivered(c *gin.Context) {
	cutoff := time.Now().AddDate(0, 0, -30)

	users, err := ctl.Reconciler.StaleDelivered(c.Request.Context(), cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, users)
}

// GET /admin/orders/state/:state - admin only
func (ctl *OrderController) GetAllOrdersByState(c *gin.Context) {
	state := c.Param("state")
	orders, err := ctl.Reconciler.GetByStatus(c.Request.Context(), state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func toReconcileResponse(res *service.ReconcileResult) dto.ReconcileResponse {
	updated := res.UpdatedOrders
	if updated == nil {
		updated = []string{}
	}
	return dto.ReconcileResponse{
		TrackingNumber: res.TrackingNumber,
		OrderStatus:    res.OrderStatus,
		Description:    res.Description,
		UpdatedOrders:  updated,
		Timestamp:      res.Timestamp,
	}
}

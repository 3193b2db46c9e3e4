// models.go
package model

import (
	"strings"
	"time"
)

// Estados de ciclo de vida de una orden. Los valores son los que viajan
// por el wire y los que quedan guardados en la base, no renombrar.
const (
	StatusNew               = "new"
	StatusCuratorAssigned   = "curator_assigned"
	StatusReadyToShip       = "ready_to_ship"
	StatusLabelCreated      = "labelCreated"
	StatusSent              = "sent"
	StatusDelivered         = "delivered"
	StatusReturned          = "returned"
	StatusDeliveryFailed    = "deliveryFailed"
	StatusKept              = "kept"
	StatusReturnedConfirmed = "returnedConfirmed"
	StatusUnknown           = "unknown"
)

// Estados del sub-documento shippingLabels.
const (
	LabelStatusCreating = "creating"
	LabelStatusSuccess  = "success"
	LabelStatusFailed   = "failed"
)

// TrackingAliasFields son los campos (en orden de prioridad) donde el mismo
// número de tracking puede estar guardado. La data histórica es inconsistente:
// hay órdenes con el número en cualquiera de estos campos.
var TrackingAliasFields = []string{
	"trackingNumber",
	"outboundTrackingNumber",
	"tracking_number",
	"shipment_tracking",
	"shippingLabels.outboundLabel.tracking_number",
}

type Order struct {
	ID        string `bson:"_id,omitempty" json:"orderId"`
	UserID    string `bson:"userId" json:"userId"`
	CuratorID string `bson:"curatorId,omitempty" json:"curatorId,omitempty"`

	Status            string `bson:"status" json:"status"`
	StatusDescription string `bson:"statusDescription,omitempty" json:"statusDescription,omitempty"`

	// Campos alias de tracking (ver TrackingAliasFields). El canónico es
	// TrackingNumber; los otros existen solo por data vieja.
	TrackingNumber         string `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	OutboundTrackingNumber string `bson:"outboundTrackingNumber,omitempty" json:"-"`
	TrackingNumberLegacy   string `bson:"tracking_number,omitempty" json:"-"`
	ShipmentTracking       string `bson:"shipment_tracking,omitempty" json:"-"`

	// Último estado crudo reportado por el carrier.
	TrackingStatus string `bson:"trackingStatus,omitempty" json:"trackingStatus,omitempty"`

	ShippingLabels     ShippingLabels  `bson:"shippingLabels,omitempty" json:"shippingLabels,omitempty"`
	LastTrackingUpdate *TrackingUpdate `bson:"lastTrackingUpdate,omitempty" json:"lastTrackingUpdate,omitempty"`

	// Datos del cliente desnormalizados en la orden. Si faltan se
	// resuelven desde el documento del usuario.
	CustomerEmail string `bson:"customerEmail,omitempty" json:"customerEmail,omitempty"`
	CustomerName  string `bson:"customerName,omitempty" json:"customerName,omitempty"`
	Address       string `bson:"address,omitempty" json:"address,omitempty"`

	// Rating que dejó el cliente (para las stats del curador).
	Rating *float64 `bson:"rating,omitempty" json:"rating,omitempty"`

	DeliveredAt *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// AnyTrackingNumber devuelve el primer alias no vacío, en orden de prioridad.
func (o *Order) AnyTrackingNumber() string {
	for _, v := range []string{
		o.TrackingNumber,
		o.OutboundTrackingNumber,
		o.TrackingNumberLegacy,
		o.ShipmentTracking,
	} {
		if v != "" {
			return v
		}
	}
	if o.ShippingLabels.OutboundLabel != nil {
		return o.ShippingLabels.OutboundLabel.TrackingNumber
	}
	return ""
}

type ShippingLabels struct {
	Created       bool       `bson:"created" json:"created"`
	Status        string     `bson:"status,omitempty" json:"status,omitempty"`
	OutboundLabel *LabelInfo `bson:"outboundLabel,omitempty" json:"outboundLabel,omitempty"`
	ReturnLabel   *LabelInfo `bson:"returnLabel,omitempty" json:"returnLabel,omitempty"`
	Error         string     `bson:"error,omitempty" json:"error,omitempty"`
	AttemptCount  int        `bson:"attemptCount,omitempty" json:"attemptCount,omitempty"`
	CreatedAt     *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// AlreadyCreated implementa el predicado compuesto "la etiqueta ya existe".
// Es un OR amplio a propósito: la creación de etiquetas no es atómica con
// la escritura del estado, cualquiera de estas señales alcanza.
func (s ShippingLabels) AlreadyCreated() bool {
	if s.Created || s.Status == LabelStatusSuccess {
		return true
	}
	if s.OutboundLabel != nil {
		if s.OutboundLabel.TrackingNumber != "" {
			return true
		}
		if s.OutboundLabel.LabelURL != "" && !strings.Contains(s.OutboundLabel.LabelURL, "failed") {
			return true
		}
	}
	if s.ReturnLabel != nil && s.ReturnLabel.TrackingNumber != "" {
		return true
	}
	return false
}

type LabelInfo struct {
	TrackingNumber string `bson:"tracking_number,omitempty" json:"tracking_number,omitempty"`
	LabelURL       string `bson:"label_url,omitempty" json:"label_url,omitempty"`
	Carrier        string `bson:"carrier,omitempty" json:"carrier,omitempty"`
	Service        string `bson:"service,omitempty" json:"service,omitempty"`
	Cost           string `bson:"cost,omitempty" json:"cost,omitempty"`
}

// TrackingUpdate es el sub-documento de auditoría que queda en la orden
// con cada cambio de estado aplicado por reconciliación.
type TrackingUpdate struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Source    string    `bson:"source" json:"source"` // webhook | manual | event
	OldStatus string    `bson:"oldStatus" json:"oldStatus"`
	NewStatus string    `bson:"newStatus" json:"newStatus"`
	// Sequence es el timestamp del evento según el carrier (o la hora de
	// recepción si el carrier no manda uno). Updates con sequence anterior
	// a la guardada se descartan para no retroceder estados.
	Sequence time.Time `bson:"sequence" json:"sequence"`
}

// StatusWrite es una actualización de estado pendiente de aplicar
// (una por orden dentro del batch de reconciliación).
type StatusWrite struct {
	OrderID           string
	Status            string
	StatusDescription string
	// Número canónico que se escribe de vuelta en trackingNumber
	// para ir sanando los alias viejos.
	TrackingNumber string
	TrackingStatus string
	Update         TrackingUpdate
}

type User struct {
	ID          string `bson:"_id,omitempty" json:"userId"`
	Email       string `bson:"email,omitempty" json:"email,omitempty"`
	DisplayName string `bson:"displayName,omitempty" json:"displayName,omitempty"`
	Username    string `bson:"username,omitempty" json:"username,omitempty"`
	FCMToken    string `bson:"fcmToken,omitempty" json:"-"`

	// Stats desnormalizadas de curador. Se recalculan completas, nunca se
	// parchean incrementalmente, para que no se vayan de sincronía.
	CuratorOrderCount    int     `bson:"curatorOrderCount,omitempty" json:"curatorOrderCount,omitempty"`
	CuratorAverageRating float64 `bson:"curatorAverageRating,omitempty" json:"curatorAverageRating,omitempty"`
	CuratorReviewCount   int     `bson:"curatorReviewCount,omitempty" json:"curatorReviewCount,omitempty"`
}

// Name devuelve el nombre para mostrar del usuario.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type CuratorStats struct {
	OrderCount    int     `bson:"curatorOrderCount"`
	AverageRating float64 `bson:"curatorAverageRating"`
	ReviewCount   int     `bson:"curatorReviewCount"`
}

// LabelFailure queda en la colección de auditoría cuando la creación de
// etiquetas agota los reintentos. Nunca se pierde una orden fallida en silencio.
type LabelFailure struct {
	OrderID       string    `bson:"orderId"`
	CustomerEmail string    `bson:"customerEmail,omitempty"`
	Error         string    `bson:"error"`
	AttemptCount  int       `bson:"attemptCount"`
	Timestamp     time.Time `bson:"timestamp"`
}

// FailedEmail queda en failed_emails cuando el envío de un mail falla.
type FailedEmail struct {
	To        string    `bson:"to"`
	Subject   string    `bson:"subject"`
	Error     string    `bson:"error"`
	Timestamp time.Time `bson:"timestamp"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dissonant-backend/internal/address"
	"dissonant-backend/internal/courier"
	"dissonant-backend/internal/model"
	"dissonant-backend/internal/retry"
)

// LabelService es el guard de idempotencia alrededor de la creación de
// etiquetas. Una orden puede recibir el intento desde dos lados (la app
// del cliente y el evento de creación de la orden); a lo sumo una llamada
// externa puede ganar y quedar persistida.
type LabelService struct {
	orders    OrderRepository
	users     UserRepository
	audit     AuditLog
	creator   LabelCreator
	warehouse address.Address

	// Presupuesto de reintentos de la llamada externa (2s/4s/8s).
	attempts  int
	baseDelay time.Duration
}

func NewLabelService(orders OrderRepository, users UserRepository, audit AuditLog, creator LabelCreator, warehouse address.Address) *LabelService {
	return &LabelService{
		orders:    orders,
		users:     users,
		audit:     audit,
		creator:   creator,
		warehouse: warehouse,
		attempts:  3,
		baseDelay: 2 * time.Second,
	}
}

// Parcel estándar para un vinilo en mailer rígido.
var defaultParcel = courier.Parcel{
	Length:       12.5,
	Width:        12.5,
	Height:       1.0,
	DistanceUnit: "in",
	Weight:       1.0,
	MassUnit:     "lb",
}

// EnsureLabels crea las etiquetas de envío de una orden si y solo si
// nadie las creó todavía.
//
// Siempre relee el documento (el snapshot del evento puede estar viejo),
// evalúa el predicado compuesto "ya creada", y el claim de status=creating
// es un compare-and-swap: de dos procesos concurrentes gana uno solo.
func (s *LabelService) EnsureLabels(ctx context.Context, orderID string) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}

	if o.ShippingLabels.AlreadyCreated() || o.ShippingLabels.Status == model.LabelStatusCreating {
		// Ya está o la está creando otro: abortamos sin error y sin
		// llamada duplicada al courier.
		return nil
	}

	claimed, err := s.orders.ClaimLabelCreation(ctx, orderID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("[Labels] orden %s: otro proceso ganó el claim, se aborta", orderID)
		return nil
	}

	email, name := s.resolveCustomer(ctx, o)

	addr, err := address.Parse(o.Address)
	if err != nil {
		// Problema de forma de datos, no transitorio: queda como failed
		// con la razón, sin quemar reintentos contra el courier.
		log.Printf("[Labels] orden %s: dirección inválida: %v", orderID, err)
		s.persistFailure(ctx, orderID, email, err, 0)
		return nil
	}

	attempts := 0
	var result *courier.LabelResult
	callErr := retry.Do(ctx, s.attempts, s.baseDelay, func() error {
		attempts++
		r, err := s.creator.CreateLabels(ctx, courier.LabelRequest{
			FromAddress:   s.warehouse,
			ToAddress:     *addr,
			Parcel:        defaultParcel,
			OrderID:       orderID,
			CustomerName:  name,
			CustomerEmail: email,
		})
		if err != nil {
			return err
		}
		if !r.Success {
			return fmt.Errorf("courier rechazó la creación: %s", r.Error)
		}
		result = r
		return nil
	})

	// Chequeo final de seguridad: mientras la llamada estaba en vuelo
	// otro proceso (o una intervención manual) pudo completar la
	// creación. En ese caso descartamos nuestro resultado sin pisar.
	fresh, ferr := s.orders.FindByID(ctx, orderID)
	if ferr == nil && fresh.ShippingLabels.AlreadyCreated() {
		log.Printf("[Labels] orden %s: etiqueta creada por otro proceso mientras tanto, resultado descartado", orderID)
		return nil
	}

	if callErr != nil {
		// Se registran los intentos que corrieron de verdad: con ctx
		// cancelado el presupuesto no llega a gastarse entero.
		s.persistFailure(ctx, orderID, email, callErr, attempts)
		return callErr
	}

	now := time.Now().UTC()
	labels := model.ShippingLabels{
		Created:       true,
		Status:        model.LabelStatusSuccess,
		OutboundLabel: result.OutboundLabel,
		ReturnLabel:   result.ReturnLabel,
		CreatedAt:     &now,
		UpdatedAt:     &now,
	}
	if err := s.orders.SaveLabelResult(ctx, orderID, labels); err != nil {
		return err
	}

	log.Printf("✔ [Labels] etiquetas creadas para orden %s", orderID)
	return nil
}

func (s *LabelService) persistFailure(ctx context.Context, orderID, email string, cause error, attempts int) {
	now := time.Now().UTC()
	labels := model.ShippingLabels{
		Created:      false,
		Status:       model.LabelStatusFailed,
		Error:        cause.Error(),
		AttemptCount: attempts,
		UpdatedAt:    &now,
	}
	if err := s.orders.SaveLabelResult(ctx, orderID, labels); err != nil {
		log.Printf("❌ [Labels] orden %s: no se pudo persistir el fallo: %v", orderID, err)
	}

	// Auditoría aparte para seguimiento manual. Nunca se pierde una
	// orden fallida en silencio.
	rec := model.LabelFailure{
		OrderID:       orderID,
		CustomerEmail: email,
		Error:         cause.Error(),
		AttemptCount:  attempts,
		Timestamp:     now,
	}
	if err := s.audit.RecordLabelFailure(ctx, rec); err != nil {
		log.Printf("❌ [Labels] orden %s: no se pudo escribir la auditoría de fallo: %v", orderID, err)
	}
}

func (s *LabelService) resolveCustomer(ctx context.Context, o *model.Order) (email, name string) {
	email = o.CustomerEmail
	name = o.CustomerName
	if email != "" {
		return email, name
	}

	u, err := s.users.FindByID(ctx, o.UserID)
	if err != nil {
		log.Printf("[Labels] orden %s: no se pudo resolver el usuario %s: %v", o.ID, o.UserID, err)
		return email, name
	}
	email = u.Email
	if name == "" {
		name = u.Name()
	}
	return email, name
}

// RetryPending re-corre el guard sobre todas las órdenes sin etiqueta
// (o una sola si orderID viene), para el endpoint de ops. El guard ya
// saltea las que no corresponden, acá solo se recolecta el resumen.
type RetrySummary struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    []string
}

func (s *LabelService) RetryPending(ctx context.Context, orderID string, dryRun bool) (*RetrySummary, error) {
	var pending []*model.Order
	if orderID != "" {
		o, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		pending = []*model.Order{o}
	} else {
		var err error
		pending, err = s.orders.FindWithoutLabels(ctx)
		if err != nil {
			return nil, err
		}
	}

	sum := &RetrySummary{}
	for _, o := range pending {
		sum.Processed++
		if o.ShippingLabels.AlreadyCreated() || o.ShippingLabels.Status == model.LabelStatusCreating {
			sum.Skipped++
			continue
		}
		if dryRun {
			continue
		}
		if err := s.EnsureLabels(ctx, o.ID); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			sum.Failed = append(sum.Failed, o.ID)
			continue
		}
		sum.Succeeded++
	}
	return sum, nil
}

package service

import (
	"context"
	"errors"
	"log"
	"time"

	"dissonant-backend/internal/courier"
	"dissonant-backend/internal/model"
	"dissonant-backend/internal/repository"
	"dissonant-backend/internal/tracking"
)

// Interfaces que deben implementar repository y los colaboradores externos
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) ([]*model.Order, error)
	FindByStatus(ctx context.Context, status string) ([]*model.Order, error)
	FindByStatuses(ctx context.Context, statuses []string) ([]*model.Order, error)
	FindByCurator(ctx context.Context, curatorID string) ([]*model.Order, error)
	FindWithoutLabels(ctx context.Context) ([]*model.Order, error)
	ApplyStatusWrites(ctx context.Context, writes []model.StatusWrite) error
	SetStatus(ctx context.Context, orderID, status, description string) error
	ClaimLabelCreation(ctx context.Context, orderID string) (bool, error)
	SaveLabelResult(ctx context.Context, orderID string, labels model.ShippingLabels) error
}

type UserRepository interface {
	FindByID(ctx context.Context, userID string) (*model.User, error)
	UpdateCuratorStats(ctx context.Context, curatorID string, stats model.CuratorStats) error
}

type AuditLog interface {
	RecordLabelFailure(ctx context.Context, rec model.LabelFailure) error
}

// StatusMailer manda el mail de cambio de estado. Fire-and-forget desde
// el punto de vista del reconciliador: sus errores se loguean y ya.
type StatusMailer interface {
	SendStatusUpdate(ctx context.Context, to, name, status, trackingNumber, description string) error
}

// LabelCreator es el colaborador externo que arma las etiquetas de envío.
type LabelCreator interface {
	CreateLabels(ctx context.Context, req courier.LabelRequest) (*courier.LabelResult, error)
}

// Notifier manda el push al curador cuando se le asigna una orden.
type Notifier interface {
	NotifyCuratorAssignment(ctx context.Context, token, orderID, curatorID, customerName string) error
}

// Errores de negocio exportados (los usa el controller)
var (
	ErrInvalidTransition = errors.New("transición de estado inválida")
)

// ReconcilerService propaga los estados de tracking del carrier sobre
// las órdenes internas.
type ReconcilerService struct {
	orders   OrderRepository
	users    UserRepository
	mailer   StatusMailer
	curators *CuratorService
}

func NewReconcilerService(orders OrderRepository, users UserRepository, mailer StatusMailer, curators *CuratorService) *ReconcilerService {
	return &ReconcilerService{orders: orders, users: users, mailer: mailer, curators: curators}
}

type ReconcileResult struct {
	TrackingNumber string
	OrderStatus    string
	Description    string
	UpdatedOrders  []string
	Timestamp      time.Time
}

// Reconcile normaliza el payload del carrier, encuentra todas las órdenes
// asociadas al tracking (por cualquier alias, más la orden explícita si
// vino), aplica los cambios de estado en un solo batch y manda a lo sumo
// UN mail por llamada, no por orden.
//
// Cero órdenes matcheadas no es un error. Solo fallas de storage suben
// al caller; el webhook las convierte en 500 y el carrier reintenta solo.
func (s *ReconcilerService) Reconcile(ctx context.Context, trackingNumber string, raw tracking.RawStatus, explicitOrderID, source string) (*ReconcileResult, error) {
	norm := tracking.Normalize(raw)
	now := time.Now().UTC()

	// Secuencia anti-desorden: timestamp del carrier si vino, si no la
	// hora de recepción. Un webhook viejo que llega tarde no puede
	// pisar un estado más nuevo.
	seq, ok := raw.EventTime()
	if !ok {
		seq = now
	}

	var writes []model.StatusWrite
	var updated []*model.Order
	seen := make(map[string]bool)

	consider := func(o *model.Order) {
		if seen[o.ID] {
			return
		}
		seen[o.ID] = true

		// Mismo estado = escritura y mail redundantes, no hacemos nada.
		if o.Status == norm.OrderStatus {
			return
		}
		if o.LastTrackingUpdate != nil && seq.Before(o.LastTrackingUpdate.Sequence) {
			log.Printf("[Reconcile] orden %s: update con sequence vieja (%s < %s), descartado",
				o.ID, seq.Format(time.RFC3339), o.LastTrackingUpdate.Sequence.Format(time.RFC3339))
			return
		}

		canonical := trackingNumber
		if canonical == "" {
			canonical = o.AnyTrackingNumber()
		}

		writes = append(writes, model.StatusWrite{
			OrderID:           o.ID,
			Status:            norm.OrderStatus,
			StatusDescription: norm.StatusDescription,
			TrackingNumber:    canonical,
			TrackingStatus:    raw.Status,
			Update: model.TrackingUpdate{
				Timestamp: now,
				Source:    source,
				OldStatus: o.Status,
				NewStatus: norm.OrderStatus,
				Sequence:  seq,
			},
		})
		updated = append(updated, o)
	}

	// 1. Orden explícita (chequeos manuales / polling)
	if explicitOrderID != "" {
		o, err := s.orders.FindByID(ctx, explicitOrderID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			log.Printf("[Reconcile] orden explícita %s no existe, se ignora", explicitOrderID)
		case err != nil:
			return nil, err
		default:
			consider(o)
		}
	}

	// 2. Búsqueda por todos los alias del tracking
	if trackingNumber != "" {
		matches, err := s.orders.FindByTrackingNumber(ctx, trackingNumber)
		if err != nil {
			return nil, err
		}
		for _, o := range matches {
			consider(o)
		}
	}

	// 3. Commit del batch completo
	if err := s.orders.ApplyStatusWrites(ctx, writes); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(updated))
	for _, o := range updated {
		ids = append(ids, o.ID)
	}

	// 4. Un solo mail por reconciliación, con el cliente de la primera
	// orden actualizada. Si falla, el update ya quedó aplicado: se
	// loguea y se sigue.
	if len(updated) > 0 && norm.ShouldSendEmail {
		s.sendStatusEmail(ctx, updated[0], norm, trackingNumber)
	}

	// 5. Stats de curador para estados de completitud
	if s.curators != nil && IsCompletionStatus(norm.OrderStatus) {
		for _, o := range updated {
			if o.CuratorID == "" {
				continue
			}
			if err := s.curators.Refresh(ctx, o.CuratorID); err != nil {
				log.Printf("[Reconcile] error recalculando stats del curador %s: %v", o.CuratorID, err)
			}
		}
	}

	return &ReconcileResult{
		TrackingNumber: trackingNumber,
		OrderStatus:    norm.OrderStatus,
		Description:    norm.StatusDescription,
		UpdatedOrders:  ids,
		Timestamp:      now,
	}, nil
}

// sendStatusEmail resuelve el mail del cliente con precedencia
// orden -> documento de usuario, y manda el mail de estado.
func (s *ReconcilerService) sendStatusEmail(ctx context.Context, o *model.Order, norm tracking.Normalized, trackingNumber string) {
	email := o.CustomerEmail
	name := o.CustomerName

	if email == "" {
		u, err := s.users.FindByID(ctx, o.UserID)
		if err != nil {
			log.Printf("[Reconcile] no se pudo resolver el usuario %s para el mail: %v", o.UserID, err)
			return
		}
		email = u.Email
		if name == "" {
			name = u.Name()
		}
	}
	if email == "" {
		log.Printf("[Reconcile] orden %s sin email de cliente, no se manda mail", o.ID)
		return
	}

	if err := s.mailer.SendStatusUpdate(ctx, email, name, norm.OrderStatus, trackingNumber, norm.StatusDescription); err != nil {
		log.Printf("❌ [Reconcile] error mandando mail de estado a %s: %v", email, err)
	}
}

// ConfirmOutcome aplica los estados terminales que confirma el cliente
// desde la app: delivered -> kept y returned -> returnedConfirmed.
func (s *ReconcilerService) ConfirmOutcome(ctx context.Context, orderID, outcome string) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}

	var description string
	switch outcome {
	case model.StatusKept:
		if o.Status != model.StatusDelivered {
			return ErrInvalidTransition
		}
		description = "Order kept by customer"
	case model.StatusReturnedConfirmed:
		if o.Status != model.StatusReturned {
			return ErrInvalidTransition
		}
		description = "Return received and confirmed"
	default:
		return ErrInvalidTransition
	}

	if err := s.orders.SetStatus(ctx, orderID, outcome, description); err != nil {
		return err
	}

	if s.curators != nil && o.CuratorID != "" {
		if err := s.curators.Refresh(ctx, o.CuratorID); err != nil {
			log.Printf("[ConfirmOutcome] error recalculando stats del curador %s: %v", o.CuratorID, err)
		}
	}
	return nil
}

// Getters
func (s *ReconcilerService) GetByStatus(ctx context.Context, status string) ([]*model.Order, error) {
	return s.orders.FindByStatus(ctx, status)
}

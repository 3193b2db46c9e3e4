package service

import (
	"context"
	"log"
	"sort"
	"time"

	"dissonant-backend/internal/dto"
	"dissonant-backend/internal/model"
)

func (s *ReconcilerService) GetByStatuses(ctx context.Context, statuses []string) ([]*model.Order, error) {
	return s.orders.FindByStatuses(ctx, statuses)
}

// StaleDelivered lista las órdenes que siguen en delivered desde antes
// del cutoff (el cliente nunca confirmó si se queda los discos o los
// devuelve), agrupadas por usuario con su mail para el follow-up.
func (s *ReconcilerService) StaleDelivered(ctx context.Context, cutoff time.Time) ([]dto.StaleDeliveredUser, error) {
	orders, err := s.orders.FindByStatus(ctx, model.StatusDelivered)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	byUser := make(map[string][]dto.StaleDeliveredOrder)

	for _, o := range orders {
		// deliveredAt si está, si no updatedAt, si no createdAt.
		deliveredAt := o.DeliveredAt
		if deliveredAt == nil {
			if !o.UpdatedAt.IsZero() {
				t := o.UpdatedAt
				deliveredAt = &t
			} else if !o.CreatedAt.IsZero() {
				t := o.CreatedAt
				deliveredAt = &t
			}
		}

		// Sin fecha conocida también cuenta como stale: no hay forma de
		// probar que es reciente.
		if deliveredAt != nil && !deliveredAt.Before(cutoff) {
			continue
		}

		entry := dto.StaleDeliveredOrder{OrderID: o.ID, DeliveredAt: deliveredAt}
		if deliveredAt != nil {
			entry.DaysDelivered = int(now.Sub(*deliveredAt).Hours() / 24)
		}
		byUser[o.UserID] = append(byUser[o.UserID], entry)
	}

	out := make([]dto.StaleDeliveredUser, 0, len(byUser))
	for userID, stale := range byUser {
		row := dto.StaleDeliveredUser{
			UserID:     userID,
			OrderCount: len(stale),
			Orders:     stale,
		}
		u, err := s.users.FindByID(ctx, userID)
		if err != nil {
			log.Printf("[StaleDelivered] no se encontró el usuario %s: %v", userID, err)
		} else {
			row.Email = u.Email
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

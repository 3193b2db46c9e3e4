package service

import (
	"context"
	"time"

	"dissonant-backend/internal/courier"
	"dissonant-backend/internal/model"
	"dissonant-backend/internal/repository"
)

// Fakes en memoria para los tests del paquete. Devuelven copias en las
// lecturas para simular snapshots del store, como hace el driver real.

type fakeOrderRepo struct {
	orders  map[string]*model.Order
	applied [][]model.StatusWrite
	saved   map[string][]model.ShippingLabels

	denyClaim bool
	findErr   error
}

func newFakeOrderRepo(orders ...*model.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{
		orders: make(map[string]*model.Order),
		saved:  make(map[string][]model.ShippingLabels),
	}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	if o.LastTrackingUpdate != nil {
		u := *o.LastTrackingUpdate
		c.LastTrackingUpdate = &u
	}
	if o.ShippingLabels.OutboundLabel != nil {
		l := *o.ShippingLabels.OutboundLabel
		c.ShippingLabels.OutboundLabel = &l
	}
	if o.ShippingLabels.ReturnLabel != nil {
		l := *o.ShippingLabels.ReturnLabel
		c.ShippingLabels.ReturnLabel = &l
	}
	return &c
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	o, ok := r.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) ([]*model.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if trackingNumber == "" {
		return nil, nil
	}
	var out []*model.Order
	for _, o := range r.orders {
		if orderHasTracking(o, trackingNumber) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// orderHasTracking replica la búsqueda $or real: el número matchea en
// CUALQUIER campo alias, no solo en el primero no vacío.
func orderHasTracking(o *model.Order, tn string) bool {
	if o.TrackingNumber == tn || o.OutboundTrackingNumber == tn ||
		o.TrackingNumberLegacy == tn || o.ShipmentTracking == tn {
		return true
	}
	return o.ShippingLabels.OutboundLabel != nil && o.ShippingLabels.OutboundLabel.TrackingNumber == tn
}

func (r *fakeOrderRepo) FindByStatus(ctx context.Context, status string) ([]*model.Order, error) {
	return r.FindByStatuses(ctx, []string{status})
}

func (r *fakeOrderRepo) FindByStatuses(ctx context.Context, statuses []string) ([]*model.Order, error) {
	var out []*model.Order
	for _, o := range r.orders {
		for _, s := range statuses {
			if o.Status == s {
				out = append(out, cloneOrder(o))
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) FindByCurator(ctx context.Context, curatorID string) ([]*model.Order, error) {
	var out []*model.Order
	for _, o := range r.orders {
		if o.CuratorID == curatorID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) FindWithoutLabels(ctx context.Context) ([]*model.Order, error) {
	var out []*model.Order
	for _, o := range r.orders {
		if !o.ShippingLabels.Created && o.ShippingLabels.Status != model.LabelStatusSuccess {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ApplyStatusWrites(ctx context.Context, writes []model.StatusWrite) error {
	if len(writes) == 0 {
		return nil
	}
	r.applied = append(r.applied, writes)
	for _, w := range writes {
		o, ok := r.orders[w.OrderID]
		if !ok {
			continue
		}
		o.Status = w.Status
		o.StatusDescription = w.StatusDescription
		o.TrackingNumber = w.TrackingNumber
		o.TrackingStatus = w.TrackingStatus
		u := w.Update
		o.LastTrackingUpdate = &u
		o.UpdatedAt = w.Update.Timestamp
	}
	return nil
}

func (r *fakeOrderRepo) SetStatus(ctx context.Context, orderID, status, description string) error {
	o, ok := r.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	o.StatusDescription = description
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeOrderRepo) ClaimLabelCreation(ctx context.Context, orderID string) (bool, error) {
	if r.denyClaim {
		return false, nil
	}
	o, ok := r.orders[orderID]
	if !ok {
		return false, nil
	}
	if o.ShippingLabels.AlreadyCreated() || o.ShippingLabels.Status == model.LabelStatusCreating {
		return false, nil
	}
	o.ShippingLabels.Status = model.LabelStatusCreating
	return true, nil
}

func (r *fakeOrderRepo) SaveLabelResult(ctx context.Context, orderID string, labels model.ShippingLabels) error {
	o, ok := r.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	r.saved[orderID] = append(r.saved[orderID], labels)
	o.ShippingLabels = labels
	if labels.Status == model.LabelStatusSuccess && labels.OutboundLabel != nil {
		o.Status = model.StatusLabelCreated
		o.TrackingNumber = labels.OutboundLabel.TrackingNumber
		o.OutboundTrackingNumber = labels.OutboundLabel.TrackingNumber
	}
	return nil
}

type fakeUserRepo struct {
	users map[string]*model.User
	stats map[string]model.CuratorStats
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{
		users: make(map[string]*model.User),
		stats: make(map[string]model.CuratorStats),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *fakeUserRepo) UpdateCuratorStats(ctx context.Context, curatorID string, stats model.CuratorStats) error {
	r.stats[curatorID] = stats
	return nil
}

type sentEmail struct {
	To     string
	Status string
}

type fakeMailer struct {
	sent []sentEmail
	err  error
}

func (m *fakeMailer) SendStatusUpdate(ctx context.Context, to, name, status, trackingNumber, description string) error {
	m.sent = append(m.sent, sentEmail{To: to, Status: status})
	return m.err
}

type fakeAudit struct {
	failures []model.LabelFailure
}

func (a *fakeAudit) RecordLabelFailure(ctx context.Context, rec model.LabelFailure) error {
	a.failures = append(a.failures, rec)
	return nil
}

type fakeLabelCreator struct {
	calls  int
	result *courier.LabelResult
	err    error
	// hook corre en cada llamada, antes de devolver; sirve para simular
	// un proceso concurrente que completa la creación mientras tanto.
	hook func()
}

func (c *fakeLabelCreator) CreateLabels(ctx context.Context, req courier.LabelRequest) (*courier.LabelResult, error) {
	c.calls++
	if c.hook != nil {
		c.hook()
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

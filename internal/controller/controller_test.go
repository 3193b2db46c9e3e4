package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dissonant-backend/internal/dto"
	"dissonant-backend/internal/model"
	"dissonant-backend/internal/repository"
	"dissonant-backend/internal/service"
	"dissonant-backend/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stubs mínimos del repositorio para armar servicios reales detrás del
// router. Solo implementan lo que estos handlers tocan.

type stubOrderRepo struct {
	orders       map[string]*model.Order
	lastStatuses []string
}

func newStubOrderRepo(orders ...*model.Order) *stubOrderRepo {
	r := &stubOrderRepo{orders: make(map[string]*model.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *stubOrderRepo) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return o, nil
}

func (r *stubOrderRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) ([]*model.Order, error) {
	return nil, nil
}

func (r *stubOrderRepo) FindByStatus(ctx context.Context, status string) ([]*model.Order, error) {
	return r.FindByStatuses(ctx, []string{status})
}

func (r *stubOrderRepo) FindByStatuses(ctx context.Context, statuses []string) ([]*model.Order, error) {
	r.lastStatuses = statuses
	var out []*model.Order
	for _, o := range r.orders {
		for _, s := range statuses {
			if o.Status == s {
				out = append(out, o)
				break
			}
		}
	}
	return out, nil
}

func (r *stubOrderRepo) FindByCurator(ctx context.Context, curatorID string) ([]*model.Order, error) {
	return nil, nil
}

func (r *stubOrderRepo) FindWithoutLabels(ctx context.Context) ([]*model.Order, error) {
	return nil, nil
}

func (r *stubOrderRepo) ApplyStatusWrites(ctx context.Context, writes []model.StatusWrite) error {
	return nil
}

func (r *stubOrderRepo) SetStatus(ctx context.Context, orderID, status, description string) error {
	o, ok := r.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	return nil
}

func (r *stubOrderRepo) ClaimLabelCreation(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func (r *stubOrderRepo) SaveLabelResult(ctx context.Context, orderID string, labels model.ShippingLabels) error {
	return nil
}

type stubUserRepo struct{}

func (stubUserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (stubUserRepo) UpdateCuratorStats(ctx context.Context, curatorID string, stats model.CuratorStats) error {
	return nil
}

type stubMailer struct{}

func (stubMailer) SendStatusUpdate(ctx context.Context, to, name, status, trackingNumber, description string) error {
	return nil
}

type stubGateway struct {
	registered []string
}

func (g *stubGateway) GetTrackingStatus(ctx context.Context, carrier, trackingNumber string) (*tracking.RawStatus, error) {
	return &tracking.RawStatus{Status: "delivered"}, nil
}

func (g *stubGateway) RegisterTracking(ctx context.Context, carrier, trackingNumber, metadata string) error {
	g.registered = append(g.registered, trackingNumber)
	return nil
}

func newTestRouter(orders *stubOrderRepo, gateway *stubGateway) *gin.Engine {
	gin.SetMode(gin.TestMode)

	reconciler := service.NewReconcilerService(orders, stubUserRepo{}, stubMailer{}, nil)
	ctl := NewOrderController(reconciler, nil, gateway)

	r := gin.New()
	r.POST("/orders/:orderId/keep", ctl.KeepOrder)
	r.POST("/orders/:orderId/confirm-return", ctl.ConfirmReturn)
	r.POST("/admin/tracking/register", ctl.RegisterTracking)
	return r
}

func TestKeepAndConfirmReturnEndpoints(t *testing.T) {
	orders := newStubOrderRepo(
		&model.Order{ID: "delivered", Status: model.StatusDelivered},
		&model.Order{ID: "returned", Status: model.StatusReturned},
		&model.Order{ID: "inflight", Status: model.StatusSent},
	)
	r := newTestRouter(orders, &stubGateway{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders/delivered/keep", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusKept, orders.orders["delivered"].Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders/returned/confirm-return", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusReturnedConfirmed, orders.orders["returned"].Status)

	// Transición inválida: sent no puede pasar directo a kept.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders/inflight/keep", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.StatusSent, orders.orders["inflight"].Status)
}

func TestRegisterTrackingSelectsShippedStatuses(t *testing.T) {
	orders := newStubOrderRepo(
		&model.Order{ID: "sent", Status: model.StatusSent, TrackingNumber: "TRK-1"},
		&model.Order{ID: "label", Status: model.StatusLabelCreated},
		&model.Order{ID: "done", Status: model.StatusDelivered, TrackingNumber: "TRK-2"},
	)
	gateway := &stubGateway{}
	r := newTestRouter(orders, gateway)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/tracking/register", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// El backfill solo mira sent y labelCreated.
	assert.Equal(t, []string{model.StatusSent, model.StatusLabelCreated}, orders.lastStatuses)
	assert.Equal(t, []string{"TRK-1"}, gateway.registered)

	var resp dto.RegisterTrackingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Registered)
	assert.Equal(t, 1, resp.Skipped)
}

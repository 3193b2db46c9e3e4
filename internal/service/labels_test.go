package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dissonant-backend/internal/address"
	"dissonant-backend/internal/courier"
	"dissonant-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAddress = "Jane Doe\n123 Main St\nPortland, OR 97201"

var testWarehouse = address.Address{
	Name:    "Dissonant Records",
	Street1: "1 Warehouse Way",
	City:    "Portland",
	State:   "OR",
	Zip:     "97209",
	Country: "US",
}

func newLabelService(orders *fakeOrderRepo, users *fakeUserRepo, audit *fakeAudit, creator *fakeLabelCreator) *LabelService {
	svc := NewLabelService(orders, users, audit, creator, testWarehouse)
	svc.baseDelay = time.Millisecond
	return svc
}

func successResult() *courier.LabelResult {
	return &courier.LabelResult{
		Success: true,
		OutboundLabel: &model.LabelInfo{
			TrackingNumber: "TRK-OUT",
			LabelURL:       "https://labels.example/out.pdf",
			Carrier:        "usps",
		},
		ReturnLabel: &model.LabelInfo{
			TrackingNumber: "TRK-RET",
			LabelURL:       "https://labels.example/ret.pdf",
			Carrier:        "usps",
		},
	}
}

func TestEnsureLabelsCreatesAndPersists(t *testing.T) {
	orders := newFakeOrderRepo(&model.Order{
		ID:            "ord1",
		UserID:        "u1",
		Status:        model.StatusReadyToShip,
		Address:       validAddress,
		CustomerEmail: "jane@example.com",
		CustomerName:  "Jane",
	})
	creator := &fakeLabelCreator{result: successResult()}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))

	assert.Equal(t, 1, creator.calls)

	o := orders.orders["ord1"]
	assert.True(t, o.ShippingLabels.Created)
	assert.Equal(t, model.LabelStatusSuccess, o.ShippingLabels.Status)
	require.NotNil(t, o.ShippingLabels.OutboundLabel)
	assert.Equal(t, "TRK-OUT", o.ShippingLabels.OutboundLabel.TrackingNumber)
	assert.Equal(t, "TRK-OUT", o.TrackingNumber)
	assert.Equal(t, model.StatusLabelCreated, o.Status)
}

func TestEnsureLabelsShortCircuitsOnOutboundTracking(t *testing.T) {
	// Cualquier señal del predicado compuesto alcanza: acá el tracking
	// del outbound ya está seteado, el colaborador no se llama nunca.
	orders := newFakeOrderRepo(&model.Order{
		ID:      "ord1",
		UserID:  "u1",
		Address: validAddress,
		ShippingLabels: model.ShippingLabels{
			OutboundLabel: &model.LabelInfo{TrackingNumber: "TRK-OUT"},
		},
	})
	creator := &fakeLabelCreator{result: successResult()}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))

	assert.Equal(t, 0, creator.calls)
	assert.Empty(t, orders.saved["ord1"])
}

func TestEnsureLabelsSecondTriggerIsANoOp(t *testing.T) {
	// Disparo duplicado (cliente + evento server-side) sobre una orden
	// ya creada: createdAt no se toca y no hay llamada externa.
	createdAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	orders := newFakeOrderRepo(&model.Order{
		ID:      "ord1",
		UserID:  "u1",
		Address: validAddress,
		ShippingLabels: model.ShippingLabels{
			Created:   true,
			Status:    model.LabelStatusSuccess,
			CreatedAt: &createdAt,
		},
	})
	creator := &fakeLabelCreator{result: successResult()}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))

	assert.Equal(t, 0, creator.calls)
	require.NotNil(t, orders.orders["ord1"].ShippingLabels.CreatedAt)
	assert.Equal(t, createdAt, *orders.orders["ord1"].ShippingLabels.CreatedAt)
}

func TestEnsureLabelsAbortsWhileCreating(t *testing.T) {
	orders := newFakeOrderRepo(&model.Order{
		ID:      "ord1",
		UserID:  "u1",
		Address: validAddress,
		ShippingLabels: model.ShippingLabels{
			Status: model.LabelStatusCreating,
		},
	})
	creator := &fakeLabelCreator{result: successResult()}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))
	assert.Equal(t, 0, creator.calls)
}

func TestEnsureLabelsLostClaimAborts(t *testing.T) {
	orders := newFakeOrderRepo(&model.Order{
		ID:      "ord1",
		UserID:  "u1",
		Address: validAddress,
	})
	orders.denyClaim = true
	creator := &fakeLabelCreator{result: successResult()}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))
	assert.Equal(t, 0, creator.calls)
}

func TestEnsureLabelsExhaustedRetriesAreAudited(t *testing.T) {
	orders := newFakeOrderRepo(&model.Order{
		ID:            "ord1",
		UserID:        "u1",
		Address:       validAddress,
		CustomerEmail: "jane@example.com",
	})
	creator := &fakeLabelCreator{err: errors.New("courier caído")}
	audit := &fakeAudit{}
	svc := newLabelService(orders, newFakeUserRepo(), audit, creator)

	err := svc.EnsureLabels(context.Background(), "ord1")
	require.Error(t, err)

	assert.Equal(t, 3, creator.calls)

	o := orders.orders["ord1"]
	assert.False(t, o.ShippingLabels.Created)
	assert.Equal(t, model.LabelStatusFailed, o.ShippingLabels.Status)
	assert.Equal(t, 3, o.ShippingLabels.AttemptCount)
	assert.NotEmpty(t, o.ShippingLabels.Error)

	// La orden fallida queda en la auditoría para seguimiento manual.
	require.Len(t, audit.failures, 1)
	assert.Equal(t, "ord1", audit.failures[0].OrderID)
	assert.Equal(t, "jane@example.com", audit.failures[0].CustomerEmail)
	assert.Equal(t, 3, audit.failures[0].AttemptCount)
}

func TestEnsureLabelsCancelledRetryRecordsActualAttempts(t *testing.T) {
	// El ctx se cancela después del primer intento: el registro de fallo
	// tiene que decir 1 intento, no el presupuesto completo.
	orders := newFakeOrderRepo(&model.Order{
		ID:            "ord1",
		UserID:        "u1",
		Address:       validAddress,
		CustomerEmail: "jane@example.com",
	})
	ctx, cancel := context.WithCancel(context.Background())
	creator := &fakeLabelCreator{err: errors.New("courier caído")}
	creator.hook = cancel
	audit := &fakeAudit{}
	svc := newLabelService(orders, newFakeUserRepo(), audit, creator)

	err := svc.EnsureLabels(ctx, "ord1")
	require.Error(t, err)

	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, 1, orders.orders["ord1"].ShippingLabels.AttemptCount)
	require.Len(t, audit.failures, 1)
	assert.Equal(t, 1, audit.failures[0].AttemptCount)
}

func TestEnsureLabelsFinalSafetyCheckDiscardsRacedResult(t *testing.T) {
	// Mientras nuestra llamada estaba en vuelo, otro proceso completó la
	// creación: nuestro resultado se descarta y no pisa nada.
	orders := newFakeOrderRepo(&model.Order{
		ID:            "ord1",
		UserID:        "u1",
		Address:       validAddress,
		CustomerEmail: "jane@example.com",
	})
	winner := model.ShippingLabels{
		Created: true,
		Status:  model.LabelStatusSuccess,
		OutboundLabel: &model.LabelInfo{
			TrackingNumber: "TRK-WINNER",
		},
	}
	creator := &fakeLabelCreator{result: successResult()}
	creator.hook = func() {
		orders.orders["ord1"].ShippingLabels = winner
	}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))

	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, "TRK-WINNER", orders.orders["ord1"].ShippingLabels.OutboundLabel.TrackingNumber)
	assert.Empty(t, orders.saved["ord1"])
}

func TestEnsureLabelsBadAddressFailsWithoutCourierCall(t *testing.T) {
	orders := newFakeOrderRepo(&model.Order{
		ID:            "ord1",
		UserID:        "u1",
		Address:       "sin formato",
		CustomerEmail: "jane@example.com",
	})
	creator := &fakeLabelCreator{result: successResult()}
	audit := &fakeAudit{}
	svc := newLabelService(orders, newFakeUserRepo(), audit, creator)

	// Problema de forma de datos: no es error del guard ni gasta
	// reintentos contra el courier.
	require.NoError(t, svc.EnsureLabels(context.Background(), "ord1"))

	assert.Equal(t, 0, creator.calls)
	assert.Equal(t, model.LabelStatusFailed, orders.orders["ord1"].ShippingLabels.Status)
	assert.Len(t, audit.failures, 1)
}

func TestRetryPendingSummarizes(t *testing.T) {
	orders := newFakeOrderRepo(
		&model.Order{ID: "pending", UserID: "u1", Address: validAddress, CustomerEmail: "a@example.com"},
		&model.Order{ID: "done", UserID: "u2", Address: validAddress, ShippingLabels: model.ShippingLabels{Created: true, Status: model.LabelStatusSuccess}},
	)
	creator := &fakeLabelCreator{result: successResult()}
	svc := newLabelService(orders, newFakeUserRepo(), &fakeAudit{}, creator)

	sum, err := svc.RetryPending(context.Background(), "", false)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, creator.calls)
	assert.True(t, orders.orders["pending"].ShippingLabels.Created)
}

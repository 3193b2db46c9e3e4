package repository

import (
	"context"
	"errors"
	"time"

	"dissonant-backend/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrNotFound = errors.New("orden no encontrada")

// Mongo implementation
type MongoOrderRepository struct {
	col *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{col: db.Collection("orders")}
}

func (m *MongoOrderRepository) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var res model.Order
	err := m.col.FindOne(ctx, bson.M{"_id": orderID}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return &res, err
}

// FindByTrackingNumber busca el número bajo TODOS los campos alias en una
// sola query $or. El dedup por _id viene gratis: cada documento matchea
// una sola vez aunque tenga el número repetido en varios campos.
func (m *MongoOrderRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) ([]*model.Order, error) {
	or := make(bson.A, 0, len(model.TrackingAliasFields))
	for _, field := range model.TrackingAliasFields {
		or = append(or, bson.M{field: trackingNumber})
	}

	cur, err := m.col.Find(ctx, bson.M{"$or": or})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	return decodeOrders(ctx, cur)
}

func (m *MongoOrderRepository) FindByStatus(ctx context.Context, status string) ([]*model.Order, error) {
	cur, err := m.col.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	return decodeOrders(ctx, cur)
}

func (m *MongoOrderRepository) FindByStatuses(ctx context.Context, statuses []string) ([]*model.Order, error) {
	cur, err := m.col.Find(ctx, bson.M{"status": bson.M{"$in": statuses}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	return decodeOrders(ctx, cur)
}

func (m *MongoOrderRepository) FindByCurator(ctx context.Context, curatorID string) ([]*model.Order, error) {
	cur, err := m.col.Find(ctx, bson.M{"curatorId": curatorID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	return decodeOrders(ctx, cur)
}

// FindWithoutLabels trae las órdenes que nunca consiguieron etiqueta
// (para el retry masivo del admin).
func (m *MongoOrderRepository) FindWithoutLabels(ctx context.Context) ([]*model.Order, error) {
	filter := bson.M{
		"shippingLabels.created": bson.M{"$ne": true},
		"shippingLabels.status":  bson.M{"$ne": model.LabelStatusSuccess},
	}
	cur, err := m.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	return decodeOrders(ctx, cur)
}

// ApplyStatusWrites aplica el batch de reconciliación como un BulkWrite
// ordenado: si una operación falla, las restantes no se ejecutan y el
// error sube al caller. Además del estado escribe el trackingNumber
// canónico (auto-sanado de alias) y la auditoría lastTrackingUpdate.
func (m *MongoOrderRepository) ApplyStatusWrites(ctx context.Context, writes []model.StatusWrite) error {
	if len(writes) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		set := bson.M{
			"status":             w.Status,
			"statusDescription":  w.StatusDescription,
			"trackingNumber":     w.TrackingNumber,
			"trackingStatus":     w.TrackingStatus,
			"lastTrackingUpdate": w.Update,
			"updatedAt":          w.Update.Timestamp,
		}
		if w.Status == model.StatusDelivered {
			set["deliveredAt"] = w.Update.Timestamp
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.OrderID}).
			SetUpdate(bson.M{"$set": set}))
	}

	_, err := m.col.BulkWrite(ctx, models)
	return err
}

func (m *MongoOrderRepository) SetStatus(ctx context.Context, orderID, status, description string) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": orderID}, bson.M{
		"$set": bson.M{
			"status":            status,
			"statusDescription": description,
			"updatedAt":         time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimLabelCreation es el claim write del guard de idempotencia, como
// compare-and-swap: el filtro re-verifica "no creada y no en curso" en la
// misma operación, así dos procesos concurrentes no pueden ganar los dos.
func (m *MongoOrderRepository) ClaimLabelCreation(ctx context.Context, orderID string) (bool, error) {
	filter := bson.M{
		"_id":                    orderID,
		"shippingLabels.created": bson.M{"$ne": true},
		"shippingLabels.status":  bson.M{"$nin": bson.A{model.LabelStatusCreating, model.LabelStatusSuccess}},
		"shippingLabels.outboundLabel.tracking_number": bson.M{"$in": bson.A{nil, ""}},
	}
	update := bson.M{
		"$set": bson.M{
			"shippingLabels.status":    model.LabelStatusCreating,
			"shippingLabels.updatedAt": time.Now().UTC(),
		},
	}

	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (m *MongoOrderRepository) SaveLabelResult(ctx context.Context, orderID string, labels model.ShippingLabels) error {
	set := bson.M{
		"shippingLabels": labels,
		"updatedAt":      time.Now().UTC(),
	}
	// Una creación exitosa también avanza el estado de la orden y
	// publica el tracking saliente en el campo canónico.
	if labels.Status == model.LabelStatusSuccess && labels.OutboundLabel != nil {
		set["status"] = model.StatusLabelCreated
		set["trackingNumber"] = labels.OutboundLabel.TrackingNumber
		set["outboundTrackingNumber"] = labels.OutboundLabel.TrackingNumber
	}

	res, err := m.col.UpdateOne(ctx, bson.M{"_id": orderID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeOrders(ctx context.Context, cur *mongo.Cursor) ([]*model.Order, error) {
	var out []*model.Order
	for cur.Next(ctx) {
		var v model.Order
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection("users")}
}

func (m *MongoUserRepository) FindByID(ctx context.Context, userID string) (*model.User, error) {
	var res model.User
	err := m.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return &res, err
}

func (m *MongoUserRepository) UpdateCuratorStats(ctx context.Context, curatorID string, stats model.CuratorStats) error {
	_, err := m.col.UpdateOne(ctx, bson.M{"_id": curatorID}, bson.M{
		"$set": bson.M{
			"curatorOrderCount":    stats.OrderCount,
			"curatorAverageRating": stats.AverageRating,
			"curatorReviewCount":   stats.ReviewCount,
		},
	})
	return err
}

// MongoAuditRepository escribe las colecciones de auditoría. Los fallos
// operativos nunca se pierden en silencio: quedan acá para seguimiento manual.
type MongoAuditRepository struct {
	labelFailures *mongo.Collection
	failedEmails  *mongo.Collection
}

func NewMongoAuditRepository(db *mongo.Database) *MongoAuditRepository {
	return &MongoAuditRepository{
		labelFailures: db.Collection("shipping_label_failures"),
		failedEmails:  db.Collection("failed_emails"),
	}
}

func (m *MongoAuditRepository) RecordLabelFailure(ctx context.Context, rec model.LabelFailure) error {
	_, err := m.labelFailures.InsertOne(ctx, rec)
	return err
}

func (m *MongoAuditRepository) RecordFailedEmail(ctx context.Context, rec model.FailedEmail) error {
	_, err := m.failedEmails.InsertOne(ctx, rec)
	return err
}

package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dissonant-backend/internal/address"
	"dissonant-backend/internal/config"
	"dissonant-backend/internal/controller"
	"dissonant-backend/internal/courier"
	"dissonant-backend/internal/mailer"
	"dissonant-backend/internal/middleware"
	"dissonant-backend/internal/notify"
	"dissonant-backend/internal/rabbit"
	"dissonant-backend/internal/repository"
	"dissonant-backend/internal/service"
)

func main() {
	cfg := config.Load()

	// Conexión a MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal(err)
	}
	db := client.Database(cfg.MongoDBName)

	// Repositorios
	orders := repository.NewMongoOrderRepository(db)
	users := repository.NewMongoUserRepository(db)
	audit := repository.NewMongoAuditRepository(db)

	// Colaboradores externos
	shippo := courier.NewClient(cfg.CourierAPIKey, cfg.LabelEndpoint)
	mail := mailer.New(cfg.EmailAPIKey, cfg.EmailFrom, cfg.EmailEndpoint, audit)
	push := notify.NewClient(cfg.FCMServerKey)

	// Servicios
	warehouse := address.Address{
		Name:    cfg.Warehouse.Name,
		Street1: cfg.Warehouse.Street1,
		City:    cfg.Warehouse.City,
		State:   cfg.Warehouse.State,
		Zip:     cfg.Warehouse.Zip,
		Country: cfg.Warehouse.Country,
	}
	curators := service.NewCuratorService(orders, users)
	reconciler := service.NewReconcilerService(orders, users, mail, curators)
	labels := service.NewLabelService(orders, users, audit, shippo, warehouse)
	authService := service.NewAuthService(cfg.AuthURL)

	// Handlers
	ctrl := controller.NewOrderController(reconciler, labels, shippo)

	// Router
	r := gin.Default()

	// Rutas públicas (las llama el carrier, no pueden pedir token)
	r.POST("/shippo-webhook", ctrl.ShippoWebhook)
	r.POST("/check-order-status", ctrl.CheckOrderStatus)

	// Rutas protegidas (requieren token)
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(authService))

	auth.POST("/orders/:orderId/labels", ctrl.CreateLabels)
	auth.POST("/orders/:orderId/keep", ctrl.KeepOrder)
	auth.POST("/orders/:orderId/confirm-return", ctrl.ConfirmReturn)

	// Rutas admin
	admin := auth.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.POST("/labels/retry", ctrl.RetryFailedLabels)
	admin.POST("/tracking/register", ctrl.RegisterTracking)
	admin.GET("/orders/stale-delivered", ctrl.StaleDelivered)
	admin.GET("/orders/state/:state", ctrl.GetAllOrdersByState)

	// Conexión a RabbitMQ
	conn, err := amqp091.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("Error conectando a RabbitMQ: %v", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Error creando canal en RabbitMQ: %v", err)
	}

	consumer := rabbit.NewOrderCreatedConsumer(labels, users, push)
	rabbit.SetupConsumers(ch, consumer)

	// Ejecutar servidor
	log.Printf("Dissonant backend ejecutándose en puerto %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

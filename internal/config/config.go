// config.go
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// PaymentKeys agrupa las credenciales de los dos proveedores de pago.
// Acá solo se transportan; la captura de pagos vive en otro servicio.
type PaymentKeys struct {
	StripeSecretKey string
	PayPalClientID  string
	PayPalSecret    string
}

// WarehouseAddress es la dirección de origen de todos los envíos.
type WarehouseAddress struct {
	Name    string
	Street1 string
	City    string
	State   string
	Zip     string
	Country string
}

// Config se carga una vez en main y se inyecta en los constructores.
// Nada lee variables de entorno fuera de este paquete.
type Config struct {
	MongoURI    string
	MongoDBName string
	RabbitURL   string
	AuthURL     string
	Port        string

	// Shippo + endpoint Lambda que arma las etiquetas.
	CourierAPIKey string
	LabelEndpoint string

	EmailAPIKey   string
	EmailFrom     string
	EmailEndpoint string

	FCMServerKey string

	PaymentKeys PaymentKeys
	Warehouse   WarehouseAddress
}

func Load() *Config {
	// .env local si existe; en deploy las variables vienen del entorno.
	_ = godotenv.Load()

	return &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://host.docker.internal:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "dissonant"),
		RabbitURL:   getEnv("RABBIT_URL", "amqp://host.docker.internal"),
		AuthURL:     getEnv("AUTH_URL", "http://host.docker.internal:3000"),
		Port:        getEnv("PORT", "8080"),

		CourierAPIKey: getEnv("SHIPPO_TOKEN", ""),
		LabelEndpoint: getEnv("LABEL_ENDPOINT", ""),

		EmailAPIKey:   getEnv("EMAIL_API_KEY", ""),
		EmailFrom:     getEnv("EMAIL_FROM", "orders@dissonant.example"),
		EmailEndpoint: getEnv("EMAIL_ENDPOINT", "https://api.sendgrid.com/v3/mail/send"),

		FCMServerKey: getEnv("FCM_SERVER_KEY", ""),

		PaymentKeys: PaymentKeys{
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			PayPalClientID:  getEnv("PAYPAL_CLIENT_ID", ""),
			PayPalSecret:    getEnv("PAYPAL_SECRET", ""),
		},
		Warehouse: WarehouseAddress{
			Name:    getEnv("WAREHOUSE_NAME", "Dissonant Records"),
			Street1: getEnv("WAREHOUSE_STREET", ""),
			City:    getEnv("WAREHOUSE_CITY", ""),
			State:   getEnv("WAREHOUSE_STATE", ""),
			Zip:     getEnv("WAREHOUSE_ZIP", ""),
			Country: getEnv("WAREHOUSE_COUNTRY", "US"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/afedorov1971/vc-module-cart/internal/builder"
	c "github.com/afedorov1971/vc-module-cart/internal/cache"
	"github.com/afedorov1971/vc-module-cart/internal/evaluator"
	carthttp "github.com/afedorov1971/vc-module-cart/internal/http"
	"github.com/afedorov1971/vc-module-cart/internal/keylock"
	"github.com/afedorov1971/vc-module-cart/internal/publisher"
	"github.com/afedorov1971/vc-module-cart/internal/repository"
	s "github.com/afedorov1971/vc-module-cart/internal/service"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDBName     string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    string
	ShippingAddr    string
	PaymentAddr     string
	PromotionAddr   string
	JWTSecret       string
	TaxRate         string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:    getEnv("KAFKA_BROKERS", "localhost:9092"),
		ShippingAddr:    getEnv("SHIPPING_SERVICE_ADDR", "http://localhost:8091"),
		PaymentAddr:     getEnv("PAYMENT_SERVICE_ADDR", "http://localhost:8092"),
		PromotionAddr:   getEnv("PROMOTION_SERVICE_ADDR", "http://localhost:8093"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		TaxRate:         getEnv("TAX_RATE_PERCENT", "0"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadConfig()

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		log.Fatalf("Invalid TAX_RATE_PERCENT %q: %v", cfg.TaxRate, err)
	}

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	repo := repository.NewMongoRepository(mongoDB)
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")
	cartCache := c.NewRedisCache(redisClient)

	notifier := publisher.NewKafkaNotifier(strings.Split(cfg.KafkaBrokers, ",")...)
	defer notifier.Close()

	deps := builder.Evaluators{
		Shipping: evaluator.NewClient("shipping", cfg.ShippingAddr),
		Payment:  evaluator.NewPaymentClient("payment", cfg.PaymentAddr),
		Coupons:  evaluator.NewCouponClient("promotion", cfg.PromotionAddr),
	}

	service := s.NewCartService(repo, cartCache, keylock.New(), notifier, deps, taxRate)
	router := carthttp.NewRouter(service, []byte(cfg.JWTSecret), cfg.RequestTimeout)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Cart service listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart service...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	mongoDB.Client().Disconnect(ctx)
	log.Println("Cart service stopped")
}

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/authgate/adapters/events"
	"github.com/layer-3/authgate/adapters/store"
	"github.com/layer-3/authgate/adapters/tokenizer"
	"github.com/layer-3/authgate/internal/logging"
	"github.com/layer-3/authgate/service"
	"github.com/layer-3/authgate/transport/http"
)

type serverConfig struct {
	Addr     string `env:"AUTHGATE_ADDR" envDefault:":9000"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	// PEM encoded P-256 key. A throwaway key is generated when unset.
	SigningKeyFile string `env:"AUTHGATE_SIGNING_KEY_FILE"`

	Service service.Config
}

func main() {
	logger := logging.New(os.Stderr)

	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	privateKey, err := loadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}
	if cfg.SigningKeyFile == "" {
		logger.Warn("no signing key configured, sessions will not survive a restart")
	}

	// Parse Redis URL and create client
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	// Initialize Watermill Redis publisher
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}
	defer publisher.Close()

	authService := service.NewAuthService(
		cfg.Service,
		tokenizer.NewJWTTokenizer(privateKey),
		store.NewRedisStore(redisClient),
		events.NewWatermillPublisher(publisher),
		logger,
	)

	router := http.SetupRouter(authService)

	logger.Info("listening", "addr", cfg.Addr)
	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseECPrivateKeyFromPEM(pem)
}

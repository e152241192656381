package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/qcom/authgate/internal/config"
	"github.com/qcom/authgate/internal/handlers"
	"github.com/qcom/authgate/internal/repository"
	"github.com/qcom/authgate/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Log.Level).Warn("Unknown log level, using info")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	tokenRepo := repository.NewTokenRepository(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.OpTimeout, logger)

	if err := tokenRepo.Ping(context.Background()); err != nil {
		logger.WithError(err).Warn("Redis not reachable at startup, token checks will fail closed until it is")
	}

	// Initialize services
	codec, err := service.NewTokenCodec(&cfg.JWT, service.SystemClock{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token codec")
	}

	tokenService, err := service.NewTokenService(&cfg.JWT, codec, tokenRepo, service.SystemClock{}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token service")
	}

	authService := service.NewAuthService(tokenService, userRepo, service.NewPasswordHasher(bcrypt.DefaultCost), logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		Config: cfg,
		Auth:   handlers.NewAuthHandlers(authService, logger),
		Users:  handlers.NewUserHandlers(authService, logger),
		Tokens: tokenService,
		Redis:  tokenRepo,
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Endpoint,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.OpTimeout,
		ReadTimeout:  cfg.Redis.OpTimeout,
		WriteTimeout: cfg.Redis.OpTimeout,

		// Per-operation deadlines from the repository are ignored without this.
		ContextTimeoutEnabled: true,
	})
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}

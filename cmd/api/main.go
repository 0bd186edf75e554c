package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/assets"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/fulfillment"
	"github.com/imrishuroy/go-storefront/internal/handlers"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/logging"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/postcommit"
	"github.com/imrishuroy/go-storefront/internal/users"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(cfg.Logger), middleware.Principal())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

// wire builds every store and service from cfg. Nothing here is global.
func wire(cfg *config.Config, clients *aws.AWSClients, runner *postcommit.Runner, logger *zap.Logger) handlers.HandlerConfig {
	productStore := catalog.NewDynamoStore(clients.DynamoDB, cfg.ProductsTable)
	orderStore := orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable)
	userStore := users.NewDynamoStore(clients.DynamoDB, cfg.UsersTable, cfg.UserEmailsTable)

	opts := []fulfillment.Option{
		fulfillment.WithStrictTransitions(cfg.StrictStatusTransitions),
		fulfillment.WithMetrics(aws.NewMetricsPublisher(clients.CloudWatch, cfg.MetricsNamespace)),
	}
	if cfg.OrdersQueueURL != "" {
		opts = append(opts, fulfillment.WithEvents(aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL)))
	} else {
		logger.Warn("ORDERS_QUEUE_URL not set, order.placed events are disabled")
	}

	return handlers.HandlerConfig{
		Orders: fulfillment.NewService(orderStore, productStore, runner, logger.Named("fulfillment"), opts...),
		Products: catalog.NewService(productStore,
			assets.NewPinningGateway(cfg.PinningBaseURL, cfg.PinningJWT, cfg.UpstreamTimeout),
			runner, logger.Named("catalog")),
		Users: users.NewService(userStore,
			users.NewHTTPIdentityProvider(cfg.IdentityBaseURL, cfg.IdentitySecret, cfg.UpstreamTimeout),
			runner, logger.Named("users")),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Logger:      logger,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	clients, err := aws.NewAWSClients(context.Background(), aws.ConfigOptions{
		Region:           cfg.AWSRegion,
		EndpointOverride: cfg.AWSEndpointOverride,
	})
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	runner := postcommit.NewRunner(logger.Named("postcommit"), cfg.PostCommitTimeout)
	r := setupRouter(wire(cfg, clients, runner, logger))

	// if RUN_LOCAL is set, run a local HTTP server for development.
	if cfg.RunLocal {
		gin.SetMode(gin.DebugMode)
		serveLocal(cfg, r, runner, logger)
		return
	}

	gin.SetMode(gin.ReleaseMode)
	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		// the container may freeze once the response is returned
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.PostCommitTimeout)
		defer cancel()
		if werr := runner.Wait(waitCtx); werr != nil {
			logger.Warn("post-commit tasks still running", zap.Error(werr))
		}
		return resp, err
	})
}

func serveLocal(cfg *config.Config, r *gin.Engine, runner *postcommit.Runner, logger *zap.Logger) {
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("running local server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		logger.Warn("post-commit tasks abandoned", zap.Error(err))
	}
}

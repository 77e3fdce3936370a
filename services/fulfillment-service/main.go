package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	"github.com/yashrajoria/digital-fulfillment/services/common/logger"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/consumer"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/controllers"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/database"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/providers"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/repository"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/routes"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/sender"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/storage"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/templates"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	// AWS clients (non-fatal; features degrade when unavailable)
	awsCfg, awsErr := awspkg.LoadAWSConfig(context.Background())

	var logSink io.Writer
	if awsErr == nil {
		if cwl, err := awspkg.NewCloudWatchLogsClient(context.Background(), awsCfg, "fulfillment-service"); err == nil && cwl.IsEnabled() {
			logSink = cwl
		}
	}
	zl := logger.MustNew(cfg.Env, logSink)
	defer zl.Sync() //nolint:errcheck

	if awsErr != nil {
		zl.Warn("AWS config unavailable, signed links and SNS disabled", zap.Error(awsErr))
	}

	// Database
	db, err := database.ConnectPostgres(cfg.Database(), zl)
	if err != nil {
		zl.Fatal("DB connection failed", zap.Error(err))
	}

	var metricsClient *awspkg.MetricsClient
	if awsErr == nil {
		metricsClient = awspkg.NewMetricsClient(awsCfg)
	}

	// Catalog
	products := buildCatalog(cfg, db, awsCfg, awsErr, zl)

	// Processors
	stripeClient := providers.NewStripeClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	verifiers := map[string]providers.PaymentVerifier{}
	var mpCheckout services.MercadoPagoCheckout
	if cfg.MercadoPagoToken != "" {
		mpClient := providers.NewMercadoPagoClient(cfg.MercadoPagoToken, cfg.MercadoPagoAPIBase).
			WithPreferenceURLs(cfg.MercadoPagoNotificationURL, cfg.MercadoPagoSuccessURL, cfg.MercadoPagoFailureURL)
		verifiers[models.ProviderMercadoPago] = mpClient
		mpCheckout = mpClient
	}
	if cfg.StripeAPIKey != "" {
		verifiers[models.ProviderStripe] = stripeClient
	}

	// Delivery
	emailSender, err := buildSender(cfg)
	if err != nil {
		zl.Fatal("Failed to init email sender", zap.Error(err))
	}
	tmpl, err := templates.Parse()
	if err != nil {
		zl.Fatal("Failed to parse email templates", zap.Error(err))
	}
	var signer storage.Signer
	if awsErr == nil {
		signer = storage.NewS3Signer(awspkg.NewPresigner(awspkg.NewS3Client(awsCfg), cfg.DownloadBucket))
	} else {
		signer = storage.Unavailable{}
	}

	sinks := services.MultiSink{services.NewLogSink(zl)}
	if awsErr == nil && cfg.FulfillmentSNSTopicARN != "" {
		sinks = append(sinks, services.NewSNSSink(awspkg.NewSNSClient(awsCfg), cfg.FulfillmentSNSTopicARN, zl))
	}
	if metricsClient.IsEnabled() {
		sinks = append(sinks, services.NewMetricsSink(metricsClient, zl))
	}

	// Dependency injection
	lockRepo := repository.NewGormLockRepository(db)
	saleRepo := repository.NewGormSaleRepository(db)

	assembler := services.NewDeliveryAssembler(signer, tmpl, cfg.LinkTTL, zl)
	notifier := services.NewNotifier(emailSender, zl)
	fulfillmentService := services.NewFulfillmentService(
		verifiers,
		services.NewIdempotencyGuard(lockRepo, saleRepo, cfg.LockStaleAfter, zl),
		services.NewFulfillmentResolver(products, zl),
		services.NewLedgerWriter(saleRepo),
		assembler,
		notifier,
		sinks,
		zl,
	)
	adminService := services.NewAdminService(saleRepo, products, assembler, notifier, fulfillmentService, zl)
	checkoutService := services.NewCheckoutService(products, stripeClient, mpCheckout, zl)

	// Queued notifications
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if awsErr == nil && cfg.NotificationQueueURL != "" {
		sqsConsumer := awspkg.NewSQSConsumer(awsCfg, cfg.NotificationQueueURL, zl).WithMetrics(metricsClient)
		notificationConsumer := consumer.NewNotificationConsumer(sqsConsumer, fulfillmentService, zl)
		go func() {
			_ = notificationConsumer.Start(consumerCtx)
		}()
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPoller := consumer.NewKafkaPoller(cfg.KafkaBrokers, cfg.KafkaPaymentTopic, cfg.KafkaGroupID, zl)
		kafkaConsumer := consumer.NewNotificationConsumer(kafkaPoller, fulfillmentService, zl)
		go func() {
			if err := kafkaConsumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
				zl.Error("Kafka consumer exited", zap.Error(err))
			}
		}()
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := routes.NewRouter(routes.Options{
		Logger:         zl,
		Metrics:        metricsClient,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AdminSecret:    []byte(cfg.AdminJWTSecret),
		RequestTimeout: 30 * time.Second,
	}, routes.Controllers{
		Webhooks: controllers.NewWebhookController(fulfillmentService, stripeClient, zl),
		Admin:    controllers.NewAdminController(adminService),
		Checkout: controllers.NewCheckoutController(checkoutService),
	})

	// HTTP server
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		zl.Info("Fulfillment service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Initiating graceful shutdown...")
	consumerCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}

	if err := database.Close(db); err != nil {
		zl.Error("Database close error", zap.Error(err))
	}

	zl.Info("Fulfillment service stopped gracefully")
}

func buildCatalog(cfg *Config, db *gorm.DB, awsCfg sdkaws.Config, awsErr error, zl *zap.Logger) repository.ProductRepository {
	var products repository.ProductRepository = repository.NewGormProductRepository(db)
	if cfg.CatalogBackend == "dynamodb" {
		if awsErr != nil {
			zl.Fatal("CATALOG_BACKEND=dynamodb requires AWS config", zap.Error(awsErr))
		}
		products = repository.NewDynamoProductRepository(dynamodb.NewFromConfig(awsCfg), cfg.CatalogTable)
	}

	if cfg.RedisURL == "" {
		return products
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zl.Warn("invalid REDIS_URL, catalog cache disabled", zap.Error(err))
		return products
	}
	return repository.NewCachedProductRepository(products, redis.NewClient(opts), cfg.CatalogTTL, zl)
}

func buildSender(cfg *Config) (sender.EmailSender, error) {
	if cfg.EmailProvider == "resend" {
		return sender.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailReplyTo, cfg.ResendAPIBase)
	}
	return sender.NewSMTPSender(cfg.SMTP())
}

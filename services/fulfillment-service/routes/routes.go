package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	apperrors "github.com/yashrajoria/digital-fulfillment/services/common/errors"
	commonmw "github.com/yashrajoria/digital-fulfillment/services/common/middleware"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/controllers"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "fulfillment-service"

type Options struct {
	Logger         *zap.Logger
	Metrics        *awspkg.MetricsClient
	AllowedOrigins []string
	AdminSecret    []byte
	RequestTimeout time.Duration
}

type Controllers struct {
	Webhooks *controllers.WebhookController
	Admin    *controllers.AdminController
	Checkout *controllers.CheckoutController
}

// NewRouter builds the engine with global middleware and every route.
func NewRouter(opts Options, ctrl Controllers) *gin.Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestID())
	r.Use(commonmw.RequestLogger(opts.Logger))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.MetricsMiddleware(opts.Metrics, serviceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(apperrors.ErrNotFound.Code, apperrors.ErrNotFound)
	})

	RegisterRoutes(r, opts, ctrl)
	return r
}

func RegisterRoutes(r *gin.Engine, opts Options, ctrl Controllers) {
	// Public
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	// Processor callbacks run without the request timeout.
	webhooks := r.Group("/webhooks", apperrors.ErrorMiddleware())
	{
		webhooks.GET("/mercadopago", ctrl.Webhooks.MercadoPago)
		webhooks.POST("/mercadopago", ctrl.Webhooks.MercadoPago)
		webhooks.POST("/stripe", ctrl.Webhooks.Stripe)
	}

	// Storefront
	checkoutLimiter := commonmw.NewRateLimiter(rate.Every(6*time.Second), 5, 10*time.Minute)
	checkout := r.Group("/checkout", commonmw.Timeout(opts.RequestTimeout), commonmw.RateLimit(checkoutLimiter))
	{
		checkout.POST("/stripe", ctrl.Checkout.CreateStripeCheckout)
		checkout.POST("/mercadopago", ctrl.Checkout.CreateMercadoPagoCheckout)
	}

	// Admin only
	adminLimiter := commonmw.NewRateLimiter(rate.Limit(5), 20, 10*time.Minute)
	admin := r.Group("/admin",
		commonmw.Timeout(opts.RequestTimeout),
		commonmw.RateLimit(adminLimiter),
		middleware.AdminJWT(opts.AdminSecret),
		apperrors.ErrorMiddleware(),
	)
	{
		admin.GET("/sales", ctrl.Admin.ListSales)
		admin.POST("/sales/manual", ctrl.Admin.CreateManualSale)
		admin.POST("/sales/:payment_id/resend", ctrl.Admin.ResendDelivery)
	}
}

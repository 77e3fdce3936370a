package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
)

type CheckoutController struct {
	checkoutService services.CheckoutService
}

func NewCheckoutController(svc services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkoutService: svc}
}

// CreateStripeCheckout handles POST /checkout/stripe
func (cc *CheckoutController) CreateStripeCheckout(ctx *gin.Context) {
	var req services.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	session, svcErr := cc.checkoutService.CreateStripeCheckout(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, session)
}

// CreateMercadoPagoCheckout handles POST /checkout/mercadopago
func (cc *CheckoutController) CreateMercadoPagoCheckout(ctx *gin.Context) {
	var req services.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	pref, svcErr := cc.checkoutService.CreateMercadoPagoCheckout(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, pref)
}

// ProcessMercadoPagoPayment handles POST /checkout/mercadopago/payment
func (cc *CheckoutController) ProcessMercadoPagoPayment(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	out, svcErr := cc.checkoutService.ProcessMercadoPagoPayment(ctx.Request.Context(), json.RawMessage(body), ctx.GetHeader("X-Idempotency-Key"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

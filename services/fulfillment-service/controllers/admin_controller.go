package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
)

// AdminController handles the operator endpoints.
type AdminController struct {
	adminService services.AdminService
}

func NewAdminController(svc services.AdminService) *AdminController {
	return &AdminController{adminService: svc}
}

// ResendDelivery handles POST /admin/sales/:payment_id/resend
func (ac *AdminController) ResendDelivery(ctx *gin.Context) {
	paymentID := ctx.Param("payment_id")
	if paymentID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Payment id is required"})
		return
	}

	res, svcErr := ac.adminService.ResendDelivery(ctx.Request.Context(), paymentID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, res)
}

// CreateManualSale handles POST /admin/sales/manual
func (ac *AdminController) CreateManualSale(ctx *gin.Context) {
	var req services.ManualSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	ack, svcErr := ac.adminService.CreateManualSale(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "result": ack})
		return
	}
	ctx.JSON(http.StatusCreated, ack)
}

// ListSales handles GET /admin/sales
func (ac *AdminController) ListSales(ctx *gin.Context) {
	page, pageSize := parsePaginationParams(ctx)
	result, svcErr := ac.adminService.ListSales(ctx.Request.Context(), models.SaleFilter{
		Email:    ctx.Query("email"),
		Page:     page,
		PageSize: pageSize,
	})
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// parsePaginationParams extracts and validates page/page_size query params.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const maxPageSize = 100
	pageInt, sizeInt := 1, 20
	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if s, err := strconv.Atoi(ctx.DefaultQuery("page_size", "20")); err == nil && s > 0 {
		sizeInt = s
	}
	if sizeInt > maxPageSize {
		sizeInt = maxPageSize
	}
	return pageInt, sizeInt
}

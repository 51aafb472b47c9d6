package router

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/finai-nexus/execution-core/internal/types"
	"github.com/finai-nexus/execution-core/internal/venue"
	"github.com/finai-nexus/execution-core/pkg/response"
)

// GinHandlers contains HTTP handlers for order placement and venue state.
type GinHandlers struct {
	router   *Router
	registry *venue.Registry
}

// NewGinHandlers creates a new set of HTTP handlers for execution endpoints.
func NewGinHandlers(router *Router, registry *venue.Registry) *GinHandlers {
	return &GinHandlers{
		router:   router,
		registry: registry,
	}
}

// PlaceOrderHandler handles POST requests to place new orders.
// Requires an idempotency key in headers; the request body carries the order.
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.router.PlaceOrder(c.Request.Context(), &req, idempotencyKey)
		if err != nil {
			respondFailure(c, err)
			return
		}
		response.Success(c, result)
	}
}

// GetOrderHandler handles GET requests for the current state of an order.
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.router.GetOrder(orderID)
		if err != nil {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

// CancelOrderHandler handles DELETE requests to cancel a working order.
// URL parameter: order_id; the requester is identified by the X-Client-ID
// header set by the surrounding system's gateway.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		requesterID := c.GetHeader("X-Client-ID")
		if requesterID == "" {
			response.BadRequest(c, "X-Client-ID header is required")
			return
		}

		order, err := h.router.CancelOrder(c.Request.Context(), orderID, requesterID)
		if err != nil {
			respondFailure(c, err)
			return
		}
		response.Success(c, order)
	}
}

// ListVenuesHandler handles GET requests for registry state.
func (h *GinHandlers) ListVenuesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.registry.Snapshot())
	}
}

// respondFailure maps typed placement failures onto HTTP statuses.
func respondFailure(c *gin.Context, err error) {
	var perr *types.PlacementError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case types.FailureInvalidOrder:
			response.UnprocessableEntity(c, perr.Message, perr.Fields)
		case types.FailureRiskLimitExceeded:
			response.UnprocessableEntity(c, perr.Message, perr.Violations)
		case types.FailureExposureUnavailable, types.FailureNoVenueAvailable:
			response.ServiceUnavailable(c, perr.Message)
		case types.FailureVenueRejected:
			response.UnprocessableEntity(c, perr.Message, nil)
		case types.FailureVenueSubmissionFailed:
			response.BadGateway(c, perr.Message)
		case types.FailureNotCancellable:
			response.Conflict(c, perr.Message)
		default:
			response.InternalError(c, perr.Message)
		}
		return
	}
	if errors.Is(err, types.ErrNotFound) {
		response.NotFound(c, "Order not found")
		return
	}
	response.InternalError(c, err.Error())
}

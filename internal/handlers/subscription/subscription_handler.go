// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"

	"sokoni-service/internal/middleware"
	xerrors "sokoni-service/internal/pkg/errors"
	"sokoni-service/internal/pkg/response"
	service "sokoni-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionService *service.Service
}

func NewSubscriptionHandler(subscriptionService *service.Service) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// GetActiveSubscription retrieves the seller's effective subscription
func (h *SubscriptionHandler) GetActiveSubscription(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	result, err := h.subscriptionService.GetActive(c.Request.Context(), sellerID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "no active subscription found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "active subscription retrieved", result)
}

// GetUsage pairs the quota cap with the seller's current consumption
func (h *SubscriptionHandler) GetUsage(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	result, err := h.subscriptionService.GetUsage(c.Request.Context(), sellerID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "no active subscription found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load usage", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription usage retrieved", result)
}

// CancelSubscription stops the seller's subscription
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	if err := h.subscriptionService.Cancel(c.Request.Context(), sellerID); err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "no active subscription found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", nil)
}

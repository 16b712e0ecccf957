// internal/handlers/listing/listing_handler.go
package listing

import (
	"context"
	"net/http"
	"strconv"

	domain "sokoni-service/internal/domain/listing"
	"sokoni-service/internal/middleware"
	xerrors "sokoni-service/internal/pkg/errors"
	"sokoni-service/internal/pkg/response"
	service "sokoni-service/internal/service/listing"
	"sokoni-service/internal/service/quota"

	"github.com/gin-gonic/gin"
)

// QuotaBypassCapability lets moderation tooling activate listings past the
// seller's subscription gate.
const QuotaBypassCapability = "quota_bypass"

type ListingHandler struct {
	listingService *service.Service
}

func NewListingHandler(listingService *service.Service) *ListingHandler {
	return &ListingHandler{listingService: listingService}
}

// ========== Seller Endpoints ==========

// CreateListing creates a new draft listing
func (h *ListingHandler) CreateListing(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	var req domain.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.listingService.Create(c.Request.Context(), sellerID, &req)
	if err != nil {
		respondErr(c, "failed to create listing", err)
		return
	}

	response.Success(c, http.StatusCreated, "listing created successfully", result)
}

// GetListing retrieves a listing by ID
func (h *ListingHandler) GetListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.listingService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, "listing not found", err)
		return
	}

	response.Success(c, http.StatusOK, "listing retrieved", result)
}

// SubmitListing moves a draft into the moderation queue
func (h *ListingHandler) SubmitListing(c *gin.Context) {
	h.sellerTransition(c, "listing submitted for review", h.listingService.Submit)
}

// WithdrawListing takes an active listing off the market
func (h *ListingHandler) WithdrawListing(c *gin.Context) {
	h.sellerTransition(c, "listing withdrawn", h.listingService.Withdraw)
}

// MarkSold finishes a listing
func (h *ListingHandler) MarkSold(c *gin.Context) {
	h.sellerTransition(c, "listing marked as sold", h.listingService.MarkSold)
}

// BumpListing refreshes the listing's recency rank
func (h *ListingHandler) BumpListing(c *gin.Context) {
	h.sellerTransition(c, "listing bumped", h.listingService.Bump)
}

// ReactivateListing returns a drafted listing to active, re-running the quota gate
func (h *ListingHandler) ReactivateListing(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	id, ok := pathID(c)
	if !ok {
		return
	}

	err := h.listingService.Reactivate(c.Request.Context(), sellerID, id, bypass(c))
	if err != nil {
		respondErr(c, "failed to reactivate listing", err)
		return
	}

	response.Success(c, http.StatusOK, "listing reactivated", nil)
}

// GrantTier applies a purchased tier to an active listing
func (h *ListingHandler) GrantTier(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	id, ok := pathID(c)
	if !ok {
		return
	}

	var req domain.GrantTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.listingService.GrantTier(c.Request.Context(), sellerID, id, &req); err != nil {
		respondErr(c, "failed to grant tier", err)
		return
	}

	response.Success(c, http.StatusOK, "tier granted", nil)
}

// GrantFeatured applies a purchased featured boost to an active listing
func (h *ListingHandler) GrantFeatured(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	id, ok := pathID(c)
	if !ok {
		return
	}

	var req domain.GrantFeaturedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.listingService.GrantFeatured(c.Request.Context(), sellerID, id, &req); err != nil {
		respondErr(c, "failed to grant featured boost", err)
		return
	}

	response.Success(c, http.StatusOK, "featured boost granted", nil)
}

// GrantPromotion places an active listing into a promotion slot
func (h *ListingHandler) GrantPromotion(c *gin.Context) {
	sellerID := middleware.MustGetIdentityID(c)

	id, ok := pathID(c)
	if !ok {
		return
	}

	var req domain.GrantPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.listingService.GrantPromotion(c.Request.Context(), sellerID, id, &req); err != nil {
		respondErr(c, "failed to grant promotion", err)
		return
	}

	response.Success(c, http.StatusOK, "promotion granted", nil)
}

// ========== Public Endpoints ==========

// BrowseListings serves a ranked page of active listings
func (h *ListingHandler) BrowseListings(c *gin.Context) {
	var filters domain.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.listingService.BrowseCategory(c.Request.Context(), &filters)
	if err != nil {
		respondErr(c, "failed to browse listings", err)
		return
	}

	response.Success(c, http.StatusOK, "listings retrieved", result)
}

// ========== Moderation Endpoints ==========

// ApproveListing activates a listing after moderator approval
func (h *ListingHandler) ApproveListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.listingService.Approve(c.Request.Context(), id, bypass(c)); err != nil {
		respondErr(c, "failed to approve listing", err)
		return
	}

	response.Success(c, http.StatusOK, "listing approved", nil)
}

// RejectListing rejects a pending listing
func (h *ListingHandler) RejectListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.listingService.Reject(c.Request.Context(), id); err != nil {
		respondErr(c, "failed to reject listing", err)
		return
	}

	response.Success(c, http.StatusOK, "listing rejected", nil)
}

// ========== Helpers ==========

func (h *ListingHandler) sellerTransition(c *gin.Context, message string, op func(ctx context.Context, sellerID, id int64) error) {
	sellerID := middleware.MustGetIdentityID(c)

	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := op(c.Request.Context(), sellerID, id); err != nil {
		respondErr(c, "operation failed", err)
		return
	}

	response.Success(c, http.StatusOK, message, nil)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid listing ID", err)
		return 0, false
	}
	return id, true
}

func bypass(c *gin.Context) bool {
	return middleware.IsAdmin(c) || middleware.HasCapability(c, QuotaBypassCapability)
}

// respondErr maps service errors onto HTTP responses. Gate denials keep their
// machine-readable reason codes.
func respondErr(c *gin.Context, message string, err error) {
	switch {
	case xerrors.Is(err, xerrors.ErrNoActiveSubscription):
		response.Denied(c, string(quota.ReasonNoSubscription), err)
	case xerrors.Is(err, xerrors.ErrQuotaExceeded):
		response.Denied(c, string(quota.ReasonQuotaExceeded), err)
	case xerrors.Is(err, xerrors.ErrTierCapacityExceeded):
		response.Denied(c, string(quota.ReasonTierCapacity), err)
	case xerrors.Is(err, xerrors.ErrPromotionSlotFull):
		response.Denied(c, string(quota.ReasonSlotFull), err)
	case xerrors.Is(err, xerrors.ErrInvalidTransition), xerrors.Is(err, xerrors.ErrListingNotActive):
		response.Error(c, http.StatusConflict, message, err)
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.Error(c, http.StatusNotFound, message, err)
	case xerrors.Is(err, xerrors.ErrForbidden):
		response.Error(c, http.StatusForbidden, message, err)
	case xerrors.Is(err, xerrors.ErrInvalidInput), xerrors.Is(err, xerrors.ErrPaymentNotCompleted):
		response.Error(c, http.StatusBadRequest, message, err)
	default:
		response.Error(c, http.StatusInternalServerError, message, err)
	}
}

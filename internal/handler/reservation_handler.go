package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gearshare/service-reservation/internal/application"
	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/reservation"
	"github.com/gearshare/service-reservation/internal/platform/auth"
	"github.com/gearshare/service-reservation/internal/platform/middleware"
	"github.com/gearshare/service-reservation/internal/platform/response"
)

const dateLayout = "2006-01-02"

// ReservationHandler handles HTTP requests for reservation operations.
type ReservationHandler struct {
	service *application.ReservationService
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(service *application.ReservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// RegisterRoutes registers all reservation routes on the given router group.
func (h *ReservationHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	reservations := r.Group("/api/v1/reservations")
	reservations.Use(authMW)
	{
		reservations.POST("", h.CreateReservation)
		reservations.GET("", h.ListReservations)
		reservations.GET("/:id", h.GetReservation)
		reservations.POST("/:id/transition", h.Transition)
		reservations.POST("/:id/pay", h.ConfirmPayment)
		reservations.POST("/:id/review", h.MarkReviewed)
	}
}

type createReservationRequest struct {
	ListingID       uuid.UUID   `json:"listing_id" binding:"required"`
	PeriodStart     string      `json:"period_start" binding:"required"`
	PeriodEnd       string      `json:"period_end" binding:"required"`
	ReceiveMethod   string      `json:"receive_method"`
	ReturnMethod    string      `json:"return_method"`
	OptionIDs       []uuid.UUID `json:"option_ids"`
	DeliveryAddress string      `json:"delivery_address"`
}

// CreateReservation handles POST /api/v1/reservations.
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	userID, nickname, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body createReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	periodStart, err := time.Parse(dateLayout, body.PeriodStart)
	if err != nil {
		response.BadRequest(c, "period_start must be a date in YYYY-MM-DD form")
		return
	}
	periodEnd, err := time.Parse(dateLayout, body.PeriodEnd)
	if err != nil {
		response.BadRequest(c, "period_end must be a date in YYYY-MM-DD form")
		return
	}

	req := application.CreateReservationRequest{
		ListingID:       body.ListingID,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		ReceiveMethod:   listing.HandoverMethod(body.ReceiveMethod),
		ReturnMethod:    listing.HandoverMethod(body.ReturnMethod),
		OptionIDs:       body.OptionIDs,
		DeliveryAddress: body.DeliveryAddress,
	}

	result, err := h.service.CreateReservation(c.Request.Context(), userID, nickname, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListReservations handles GET /api/v1/reservations. The role query
// parameter selects the guest or host view of the caller's reservations.
func (h *ReservationHandler) ListReservations(c *gin.Context) {
	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	var status reservation.Status
	if raw := c.Query("status"); raw != "" {
		parsed, err := reservation.ParseStatus(raw)
		if err != nil {
			response.BadRequest(c, "unknown status filter")
			return
		}
		status = parsed
	}

	page, limit := parsePagination(c)

	switch c.DefaultQuery("role", "guest") {
	case "host":
		result, err := h.service.ListAsHost(c.Request.Context(), userID, status, page, limit)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
	case "guest":
		result, err := h.service.ListAsGuest(c.Request.Context(), userID, status, page, limit)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
	default:
		response.BadRequest(c, "role must be guest or host")
	}
}

// GetReservation handles GET /api/v1/reservations/:id.
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reservation ID")
		return
	}
	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	result, err := h.service.GetReservation(c.Request.Context(), reservationID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type transitionRequest struct {
	TargetStatus   string `json:"target_status" binding:"required"`
	Reason         string `json:"reason"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// Transition handles POST /api/v1/reservations/:id/transition.
func (h *ReservationHandler) Transition(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reservation ID")
		return
	}
	userID, nickname, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body transitionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	target, err := reservation.ParseStatus(body.TargetStatus)
	if err != nil {
		response.BadRequest(c, "unknown target status")
		return
	}

	result, err := h.service.Transition(c.Request.Context(), reservationID, userID, nickname, application.TransitionRequest{
		TargetStatus:   target,
		Reason:         body.Reason,
		Carrier:        body.Carrier,
		TrackingNumber: body.TrackingNumber,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type confirmPaymentRequest struct {
	PaymentToken string `json:"payment_token" binding:"required"`
}

// ConfirmPayment handles POST /api/v1/reservations/:id/pay.
func (h *ReservationHandler) ConfirmPayment(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reservation ID")
		return
	}
	userID, nickname, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body confirmPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ConfirmPayment(c.Request.Context(), reservationID, userID, nickname, body.PaymentToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// MarkReviewed handles POST /api/v1/reservations/:id/review.
func (h *ReservationHandler) MarkReviewed(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid reservation ID")
		return
	}
	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	result, err := h.service.MarkReviewed(c.Request.Context(), reservationID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// callerIdentity extracts the authenticated user's id and nickname,
// writing a 401 when the auth middleware did not run.
func callerIdentity(c *gin.Context) (uuid.UUID, string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, "", false
	}
	nickname, _ := middleware.GetUserNickname(c)
	return userID, nickname, true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

package booking

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coursehub/internal/api"
	"coursehub/internal/auth"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func actorFrom(c *gin.Context) (Actor, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized", Code: "unauthenticated"})
		return Actor{}, false
	}
	role, _ := auth.GetRole(c)
	return Actor{UserID: userID, Role: role}, true
}

// Enroll godoc
// @Summary      Enroll in a stationary course
// @Description  Creates a pending enrollment and a pending ledger transaction.
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        courseID  path      int  true  "Course ID"
// @Success      201       {object}  EnrollmentResult
// @Failure      400       {object}  api.ErrorResponse
// @Failure      401       {object}  api.ErrorResponse
// @Failure      403       {object}  api.ErrorResponse
// @Failure      404       {object}  api.ErrorResponse
// @Router       /courses/{courseID}/enroll [post]
func (h *Handler) Enroll(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	courseID, ok := api.IDParam(c, "courseID")
	if !ok {
		return
	}

	res, err := h.service.Enroll(c.Request.Context(), actor.UserID, courseID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Purchase godoc
// @Summary      Buy an on-demand course
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        courseID  path      int  true  "Course ID"
// @Success      201       {object}  PurchaseResult
// @Failure      400       {object}  api.ErrorResponse
// @Failure      403       {object}  api.ErrorResponse
// @Failure      404       {object}  api.ErrorResponse
// @Router       /courses/{courseID}/purchase [post]
func (h *Handler) Purchase(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	courseID, ok := api.IDParam(c, "courseID")
	if !ok {
		return
	}

	res, err := h.service.Purchase(c.Request.Context(), actor.UserID, courseID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ConfirmEnrollment godoc
// @Summary      Confirm an enrollment
// @Description  Course organizer or admin. Completes the ledger transaction; repeating the call is a no-op.
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        enrollmentID  path      int  true  "Enrollment ID"
// @Success      200           {object}  EnrollmentResult
// @Failure      400           {object}  api.ErrorResponse
// @Failure      403           {object}  api.ErrorResponse
// @Failure      404           {object}  api.ErrorResponse
// @Router       /enrollments/{enrollmentID}/confirm [post]
func (h *Handler) ConfirmEnrollment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := api.IDParam(c, "enrollmentID")
	if !ok {
		return
	}

	res, err := h.service.ConfirmEnrollment(c.Request.Context(), actor, id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CancelEnrollment godoc
// @Summary      Cancel an enrollment
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        enrollmentID  path      int  true  "Enrollment ID"
// @Success      200           {object}  EnrollmentResult
// @Failure      403           {object}  api.ErrorResponse
// @Failure      404           {object}  api.ErrorResponse
// @Router       /enrollments/{enrollmentID}/cancel [post]
func (h *Handler) CancelEnrollment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := api.IDParam(c, "enrollmentID")
	if !ok {
		return
	}

	res, err := h.service.CancelEnrollment(c.Request.Context(), actor, id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// OfferConsultation godoc
// @Summary      Offer a consultation slot
// @Tags         consultations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      OfferConsultationRequest  true  "Slot"
// @Success      201      {object}  Consultation
// @Failure      400      {object}  api.ErrorResponse
// @Router       /consultations [post]
func (h *Handler) OfferConsultation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req OfferConsultationRequest
	if !api.BindJSON(c, &req) {
		return
	}

	out, err := h.service.OfferConsultation(c.Request.Context(), actor.UserID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// BookConsultation godoc
// @Summary      Book a consultation slot
// @Description  Exactly one of several concurrent requests for the same slot succeeds; the rest get slot_unavailable.
// @Tags         consultations
// @Produce      json
// @Security     BearerAuth
// @Param        consultationID  path      int  true  "Consultation ID"
// @Success      201             {object}  ConsultationResult
// @Failure      400             {object}  api.ErrorResponse
// @Failure      403             {object}  api.ErrorResponse
// @Failure      404             {object}  api.ErrorResponse
// @Router       /consultations/{consultationID}/book [post]
func (h *Handler) BookConsultation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := api.IDParam(c, "consultationID")
	if !ok {
		return
	}

	res, err := h.service.BookConsultation(c.Request.Context(), actor.UserID, id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// CancelConsultation godoc
// @Summary      Cancel a consultation
// @Tags         consultations
// @Produce      json
// @Security     BearerAuth
// @Param        consultationID  path      int  true  "Consultation ID"
// @Success      200             {object}  ConsultationResult
// @Failure      403             {object}  api.ErrorResponse
// @Failure      404             {object}  api.ErrorResponse
// @Router       /consultations/{consultationID}/cancel [post]
func (h *Handler) CancelConsultation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := api.IDParam(c, "consultationID")
	if !ok {
		return
	}

	res, err := h.service.CancelConsultation(c.Request.Context(), actor, id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// OpenConsultations godoc
// @Summary      List a trainer's bookable slots
// @Tags         consultations
// @Produce      json
// @Security     BearerAuth
// @Param        trainerID  path     int  true  "Trainer ID"
// @Success      200        {array}  Consultation
// @Router       /trainers/{trainerID}/consultations [get]
func (h *Handler) OpenConsultations(c *gin.Context) {
	trainerID, ok := api.IDParam(c, "trainerID")
	if !ok {
		return
	}
	out, err := h.service.ListOpenConsultations(c.Request.Context(), trainerID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

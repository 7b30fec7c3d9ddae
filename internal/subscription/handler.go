package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coursehub/internal/api"
	"coursehub/internal/auth"
	"coursehub/internal/money"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type RenewRequest struct {
	MonthlyPrice int64 `json:"monthly_price" binding:"gte=0"`
}

// Get godoc
// @Summary      Current subscription
// @Tags         subscription
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  View
// @Router       /subscription [get]
func (h *Handler) Get(c *gin.Context) {
	organizerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized", Code: "unauthenticated"})
		return
	}

	view, err := h.service.Get(c.Request.Context(), organizerID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Renew godoc
// @Summary      Renew subscription
// @Description  Starts a subscription, or extends an active one by a period from its current end date.
// @Tags         subscription
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      RenewRequest  true  "Monthly price in cents"
// @Success      200      {object}  Subscription
// @Failure      400      {object}  api.ErrorResponse
// @Router       /subscription/renew [post]
func (h *Handler) Renew(c *gin.Context) {
	organizerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized", Code: "unauthenticated"})
		return
	}

	var req RenewRequest
	if c.Request.ContentLength != 0 {
		if !api.BindJSON(c, &req) {
			return
		}
	}

	sub, err := h.service.Renew(c.Request.Context(), organizerID, money.Cents(req.MonthlyPrice))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Cancel godoc
// @Summary      Cancel subscription
// @Description  Marks the subscription cancelled. The end date is kept.
// @Tags         subscription
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Subscription
// @Failure      404  {object}  api.ErrorResponse
// @Router       /subscription [delete]
func (h *Handler) Cancel(c *gin.Context) {
	organizerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized", Code: "unauthenticated"})
		return
	}

	sub, err := h.service.Cancel(c.Request.Context(), organizerID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

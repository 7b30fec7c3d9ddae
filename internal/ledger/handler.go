package ledger

import (
	"net/http"
	"strconv"
	"time"

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

// Summary godoc
// @Summary      Ledger summary
// @Description  Revenue, commission and earnings grouped by transaction type. Cancelled transactions are excluded.
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        organizer_id  query     int     false  "Organizer (admins only)"
// @Param        type          query     string  false  "Transaction type"
// @Param        from          query     string  false  "Inclusive lower bound (RFC3339 or YYYY-MM-DD)"
// @Param        to            query     string  false  "Exclusive upper bound (RFC3339 or YYYY-MM-DD)"
// @Success      200           {object}  Summary
// @Failure      400           {object}  api.ErrorResponse
// @Router       /ledger/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	f, ok := h.filterFromQuery(c)
	if !ok {
		return
	}

	sum, err := h.service.Aggregate(c.Request.Context(), f)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Daily godoc
// @Summary      Ledger activity per day
// @Description  Per-day totals in UTC with counts of completed and pending transactions.
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Inclusive lower bound"
// @Param        to    query     string  false  "Exclusive upper bound"
// @Success      200   {array}   DayTotals
// @Failure      400   {object}  api.ErrorResponse
// @Router       /ledger/daily [get]
func (h *Handler) Daily(c *gin.Context) {
	f, ok := h.filterFromQuery(c)
	if !ok {
		return
	}

	days, err := h.service.Daily(c.Request.Context(), f)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// Transactions godoc
// @Summary      List ledger transactions
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query     int  false  "Page size"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {array}   Transaction
// @Router       /ledger/transactions [get]
func (h *Handler) Transactions(c *gin.Context) {
	f, ok := h.filterFromQuery(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := h.service.List(c.Request.Context(), f, limit, offset)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

type companyPackageRequest struct {
	OrganizerID    int            `json:"organizer_id" binding:"required,gt=0"`
	AmountCents    int64          `json:"amount_cents" binding:"required,gt=0"`
	CommissionRate *money.Percent `json:"commission_rate"`
	Description    string         `json:"description" binding:"max=500"`
}

// RecordCompanyPackage godoc
// @Summary      Record a company package sale
// @Tags         ledger
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Success      201  {object}  Transaction
// @Failure      400  {object}  api.ErrorResponse
// @Router       /admin/ledger/company-packages [post]
func (h *Handler) RecordCompanyPackage(c *gin.Context) {
	var req companyPackageRequest
	if !api.BindJSON(c, &req) {
		return
	}

	t, err := h.service.RecordCompanyPackage(c.Request.Context(), CompanyPackageRequest{
		OrganizerID:    req.OrganizerID,
		Amount:         money.Cents(req.AmountCents),
		CommissionRate: req.CommissionRate,
		Description:    req.Description,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// filterFromQuery scopes non-admin callers to their own transactions.
func (h *Handler) filterFromQuery(c *gin.Context) (Filter, bool) {
	var f Filter

	userID, ok := auth.GetUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated", Code: "unauthenticated"})
		return f, false
	}
	role, _ := auth.GetRole(c)

	if role == auth.RoleAdmin {
		if v := c.Query("organizer_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil || id <= 0 {
				api.RespondBadRequest(c, "invalid_filter", "Invalid organizer_id")
				return f, false
			}
			f.OrganizerID = &id
		}
	} else {
		f.OrganizerID = &userID
	}

	if v := c.Query("type"); v != "" {
		t := Type(v)
		if !t.Valid() {
			api.RespondBadRequest(c, "invalid_filter", "Invalid transaction type")
			return f, false
		}
		f.Type = &t
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		ts, err := parseDate(v)
		if err != nil {
			api.RespondBadRequest(c, "invalid_filter", "Invalid "+p.name+" date")
			return f, false
		}
		*p.dst = &ts
	}

	return f, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

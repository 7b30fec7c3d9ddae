package access

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coursehub/internal/api"
	"coursehub/internal/auth"
)

var denials = map[Reason]api.ErrorResponse{
	ReasonNoSubscription: {Error: "An active subscription is required to create courses", Code: "no_subscription"},
	ReasonExpired:        {Error: "Your subscription has expired", Code: "subscription_expired"},
	ReasonRoleNotAllowed: {Error: "Insufficient permissions", Code: "forbidden"},
}

// RequireCourseCreation must run after auth.AuthMiddleware.
func RequireCourseCreation(gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized", Code: "unauthenticated"})
			return
		}
		role, _ := auth.GetRole(c)

		d, err := gate.CanCreateCourse(c.Request.Context(), role, userID)
		if err != nil {
			api.RespondError(c, err)
			c.Abort()
			return
		}
		if !d.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, denials[d.Reason])
			return
		}
		c.Next()
	}
}

type Handler struct {
	gate *Gate
}

func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// CreationAccess godoc
// @Summary      Course creation access
// @Description  Reports whether the caller may create courses, and why not.
// @Tags         courses
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  Decision
// @Router       /courses/creation-access [get]
func (h *Handler) CreationAccess(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized", Code: "unauthenticated"})
		return
	}
	role, _ := auth.GetRole(c)

	d, err := h.gate.CanCreateCourse(c.Request.Context(), role, userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

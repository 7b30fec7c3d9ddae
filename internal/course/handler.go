package course

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

// CreateCourse godoc
// @Summary      Create a course
// @Description  Requires an active subscription for organizers. Percentages are clamped to [0, 100].
// @Tags         courses
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateCourseRequest  true  "Course payload"
// @Success      201      {object}  Course
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      403      {object}  api.ErrorResponse
// @Failure      500      {object}  api.ErrorResponse
// @Router       /courses [post]
func (h *Handler) CreateCourse(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized", Code: "unauthenticated"})
		return
	}

	var req CreateCourseRequest
	if !api.BindJSON(c, &req) {
		return
	}

	course, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// GetCourse godoc
// @Summary      Get a course
// @Tags         courses
// @Produce      json
// @Security     BearerAuth
// @Param        courseID  path      int  true  "Course ID"
// @Success      200       {object}  Course
// @Failure      404       {object}  api.ErrorResponse
// @Router       /courses/{courseID} [get]
func (h *Handler) GetCourse(c *gin.Context) {
	id, ok := api.IDParam(c, "courseID")
	if !ok {
		return
	}
	course, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// MyCourses godoc
// @Summary      List the caller's courses
// @Tags         courses
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  Course
// @Router       /organizer/courses [get]
func (h *Handler) MyCourses(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized", Code: "unauthenticated"})
		return
	}
	courses, err := h.service.ListByOrganizer(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

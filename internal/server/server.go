package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coursehub/internal/access"
	"coursehub/internal/auth"
	"coursehub/internal/billing"
	"coursehub/internal/booking"
	"coursehub/internal/config"
	"coursehub/internal/course"
	"coursehub/internal/ledger"
	"coursehub/internal/logger"
	"coursehub/internal/subscription"
	"coursehub/internal/user"
)

// Handlers are the domain endpoints the router mounts.
type Handlers struct {
	User         *user.Handler
	Course       *course.Handler
	Booking      *booking.Handler
	Ledger       *ledger.Handler
	Subscription *subscription.Handler
	Access       *access.Handler
	Billing      *billing.Handler
	Gate         *access.Gate
}

type Server struct {
	router  *gin.Engine
	http    *http.Server
	limiter *RateLimiter
}

func New(cfg *config.Config, h Handlers, checks map[string]Check) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), RequestLoggingMiddleware(), MetricsMiddleware(), corsMiddleware())

	limiter := NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 3*time.Minute)

	router.GET("/health", Health(checks))
	router.GET("/metrics", Metrics())

	// The processor authenticates with its signature, not a session.
	router.POST("/webhooks/payments", h.Billing.Webhook)

	protected := router.Group("/")
	protected.Use(limiter.Middleware(), auth.AuthMiddleware(cfg.JWTSecret))
	{
		protected.GET("/me", h.User.GetMe)

		protected.GET("/courses/creation-access", h.Access.CreationAccess)
		protected.POST("/courses",
			auth.RequireCapability(auth.CapCreateCourse),
			access.RequireCourseCreation(h.Gate),
			h.Course.CreateCourse,
		)
		protected.GET("/courses/:courseID", h.Course.GetCourse)
		protected.GET("/organizer/courses", auth.RequireCapability(auth.CapCreateCourse), h.Course.MyCourses)

		protected.POST("/courses/:courseID/enroll", auth.RequireCapability(auth.CapEnroll), h.Booking.Enroll)
		protected.POST("/courses/:courseID/purchase", auth.RequireCapability(auth.CapPurchase), h.Booking.Purchase)

		enrollments := protected.Group("/enrollments", auth.RequireCapability(auth.CapManageEnrollments))
		enrollments.POST("/:enrollmentID/confirm", h.Booking.ConfirmEnrollment)
		enrollments.POST("/:enrollmentID/cancel", h.Booking.CancelEnrollment)

		protected.POST("/consultations", auth.RequireCapability(auth.CapOfferConsultation), h.Booking.OfferConsultation)
		protected.POST("/consultations/:consultationID/book", auth.RequireCapability(auth.CapBookConsultation), h.Booking.BookConsultation)
		protected.POST("/consultations/:consultationID/cancel", h.Booking.CancelConsultation)
		protected.GET("/trainers/:trainerID/consultations", h.Booking.OpenConsultations)

		subs := protected.Group("/subscription", auth.RequireCapability(auth.CapManageSubscription))
		subs.GET("", h.Subscription.Get)
		subs.POST("/renew", h.Subscription.Renew)
		subs.DELETE("", h.Subscription.Cancel)

		ledgerRoutes := protected.Group("/ledger", auth.RequireCapability(auth.CapViewLedger))
		ledgerRoutes.GET("/summary", h.Ledger.Summary)
		ledgerRoutes.GET("/daily", h.Ledger.Daily)
		ledgerRoutes.GET("/transactions", h.Ledger.Transactions)
	}

	admin := router.Group("/admin")
	admin.Use(limiter.Middleware(), auth.AuthMiddleware(cfg.JWTSecret), auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/ledger/company-packages", auth.RequireCapability(auth.CapRecordPackages), h.Ledger.RecordCompanyPackage)
	}

	return &Server{
		router:  router,
		limiter: limiter,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.http.Shutdown(ctx)
}

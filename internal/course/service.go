package course

import (
	"context"

	"coursehub/internal/logger"
	"coursehub/internal/pricing"
)

type Service interface {
	Create(ctx context.Context, organizerID int, req CreateCourseRequest) (*Course, error)
	Get(ctx context.Context, id int) (*Course, error)
	ListByOrganizer(ctx context.Context, organizerID int) ([]Course, error)
}

type service struct {
	repo   Repository
	policy *pricing.Policy
}

func NewService(repo Repository, policy *pricing.Policy) Service {
	return &service{repo: repo, policy: policy}
}

// Create stores a course after checking it can be priced. Percentages are
// clamped first, so pricing only fails on negative money.
func (s *service) Create(ctx context.Context, organizerID int, req CreateCourseRequest) (*Course, error) {
	req.clamp()

	draft := Course{
		Kind:                     req.Kind,
		BasePrice:                req.BasePrice,
		ParticipantPrice:         req.ParticipantPrice,
		FundingPercentage:        req.FundingPercentage,
		LiveCommissionRate:       req.LiveCommissionRate,
		OnlinePrice:              req.OnlinePrice,
		OnlineDiscountPercentage: req.OnlineDiscountPercentage,
		CommissionRate:           req.CommissionRate,
	}
	var err error
	switch req.Kind {
	case KindStationary:
		_, err = s.policy.Stationary(draft.StationaryInput())
	case KindOnline:
		_, err = s.policy.Online(draft.OnlineInput())
	default:
		return nil, ErrInvalidKind
	}
	if err != nil {
		return nil, err
	}

	c, err := s.repo.Create(ctx, organizerID, req)
	if err != nil {
		return nil, err
	}
	logger.Info("course created", "course_id", c.ID, "organizer_id", organizerID, "kind", c.Kind)
	return c, nil
}

func (s *service) Get(ctx context.Context, id int) (*Course, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByOrganizer(ctx context.Context, organizerID int) ([]Course, error) {
	return s.repo.ListByOrganizer(ctx, organizerID)
}

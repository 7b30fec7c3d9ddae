package course

import "context"

type Repository interface {
	Create(ctx context.Context, organizerID int, req CreateCourseRequest) (*Course, error)
	GetByID(ctx context.Context, id int) (*Course, error)
	ListByOrganizer(ctx context.Context, organizerID int) ([]Course, error)
}

package ledger

import "context"

type Repository interface {
	Insert(ctx context.Context, t *Transaction) (*Transaction, error)
	GetByID(ctx context.Context, id int) (*Transaction, error)
	FindByRef(ctx context.Context, ref Ref) (*Transaction, error)
	TransitionPending(ctx context.Context, id int, to Status) (*Transaction, error)
	Aggregate(ctx context.Context, f Filter) ([]TypeTotals, error)
	Daily(ctx context.Context, f Filter) ([]DayTotals, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Transaction, error)
}

package medication

import "context"

// DrugOrderRepository reads host drug orders. GetByUUID returns nil without
// an error when no order matches.
type DrugOrderRepository interface {
	GetByUUID(ctx context.Context, uuid string) (*DrugOrder, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugOrder, int, error)
}

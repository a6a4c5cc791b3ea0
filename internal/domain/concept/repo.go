package concept

import "context"

// Repository reads host concepts. Lookups that match nothing return nil
// without an error.
type Repository interface {
	GetByUUID(ctx context.Context, uuid string) (*Concept, error)
	GetByMapping(ctx context.Context, sourceName, code string) (*Concept, error)
}

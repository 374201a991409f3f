package anchor

import "context"

// Store persists the append-only anchor log. Declared here, where it is
// consumed; memory and postgres implementations live alongside.
type Store interface {
	AppendAnchor(ctx context.Context, record Record) error
	ListAnchors(ctx context.Context, subject string) ([]Record, error)
}

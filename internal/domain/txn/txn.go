package txn

import (
	"context"
	"errors"
)

// ErrConcurrentModification is returned when a lock could not be taken in time
// or a versioned write lost a race. Callers may retry.
var ErrConcurrentModification = errors.New("concurrent modification")

// Manager runs fn inside one storage transaction. The transaction travels in the
// context handed to fn; repositories called with that context join it. A nested
// WithinTx joins the outer transaction instead of opening a new one.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

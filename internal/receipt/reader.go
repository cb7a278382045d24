package receipt

import "context"

// Reader extracts the total amount from a receipt image. The detection
// engine is external; the core only consumes the numeric result in integer
// currency units.
type Reader interface {
	ReadTotal(ctx context.Context, imageRef string) (int64, error)
}

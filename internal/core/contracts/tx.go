package contracts

import "context"

// TxManager runs fn inside one database transaction, carried through
// the context to the repositories.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

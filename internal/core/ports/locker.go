package ports

import "context"

// Locker serializes work on a single key, typically a payment id.
// Unlock must be called exactly once after a successful Lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

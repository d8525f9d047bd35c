// Package lock serializes mutating operations per payroll period.
package lock

import (
	"context"
	"errors"
)

var ErrNotObtained = errors.New("lock not obtained, another operation is in progress")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker grants exclusive ownership of a key. Acquire blocks until the key is free, the
// locker's wait bound elapses, or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

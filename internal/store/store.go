package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks a failure to reach or operate the store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDuplicate is returned by Insert when the provider id already exists.
	ErrDuplicate = errors.New("duplicate provider message id")
)

// Store is the document-store boundary the relay persists messages through.
// Implementations must be safe for concurrent use.
type Store interface {
	Find(ctx context.Context, f Filter) ([]Message, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, f Filter) (*Message, error)
	Insert(ctx context.Context, m *Message) error
	UpdateOne(ctx context.Context, f Filter, p Patch) (matched bool, err error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Unavailable is a Store that fails every operation. It stands in for a
// store that could not be reached at startup.
type Unavailable struct {
	Reason error
}

func (u Unavailable) fail(op string) error {
	if u.Reason == nil {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return unavailable(op, u.Reason)
}

func (u Unavailable) Find(context.Context, Filter) ([]Message, error) {
	return nil, u.fail("find")
}

func (u Unavailable) FindOne(context.Context, Filter) (*Message, error) {
	return nil, u.fail("find one")
}

func (u Unavailable) Insert(context.Context, *Message) error { return u.fail("insert") }

func (u Unavailable) UpdateOne(context.Context, Filter, Patch) (bool, error) {
	return false, u.fail("update one")
}

func (u Unavailable) Count(context.Context) (int64, error) { return 0, u.fail("count") }

func (u Unavailable) Ping(context.Context) error { return u.fail("ping") }

func (u Unavailable) Close() error { return nil }

// Package repo defines the generic Repository interface, list options and
// an in-memory implementation.
package repo

import (
	"context"
	"errors"
)

// Errors returned by repositories.
var (
	ErrNotFound = errors.New("repo: not found")
	ErrExists   = errors.New("repo: already exists")
)

// Repository is a generic CRUD interface.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts[T]) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls filtering, ordering and pagination for List operations.
// Without Less, items come back in insertion order.
type ListOpts[T any] struct {
	Offset int
	Limit  int
	Where  func(T) bool
	Less   func(a, b T) bool
}

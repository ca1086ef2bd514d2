// Package catalog is the relational side of a recipe: the authoritative list
// of recipe names the asset store is kept in step with.
package catalog

import (
	"context"
	"errors"
)

var (
	ErrExist            = errors.New("catalog: recipe already exists")
	ErrNotExist         = errors.New("catalog: recipe does not exist")
	ErrMalformedAddress = errors.New("catalog: malformed address")
	ErrUnknownProtocol  = errors.New("catalog: unknown address protocol")
	ErrNotOpen          = errors.New("catalog: not open")
)

// Catalog stores recipe names. Implementations are safe for concurrent use.
type Catalog interface {
	// Name returns the identifier of the implementation.
	Name() string

	// Open is part of the lifecycle and prepares connections and schema.
	Open(ctx context.Context) error
	// Close is part of the lifecycle and releases every held resource.
	Close(ctx context.Context) error

	// CreateRecipe adds name, failing with ErrExist when it is present.
	CreateRecipe(ctx context.Context, name string) error
	// DeleteRecipe removes name, failing with ErrNotExist when it is absent.
	DeleteRecipe(ctx context.Context, name string) error
	HasRecipe(ctx context.Context, name string) (bool, error)
	// ListRecipes returns all names in ascending order.
	ListRecipes(ctx context.Context) ([]string, error)
}

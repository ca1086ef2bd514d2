package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// MemoryCatalog keeps recipe names with their creation time in an ordered
// in-process map. Its content is lost on Close.
type MemoryCatalog struct {
	mu      sync.RWMutex
	recipes *btree.Map[string, time.Time]
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (*MemoryCatalog) Name() string {
	return "memory"
}

func (mc *MemoryCatalog) Open(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.recipes == nil {
		mc.recipes = btree.NewMap[string, time.Time](0)
	}
	return nil
}

func (mc *MemoryCatalog) Close(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.recipes = nil
	return nil
}

func (mc *MemoryCatalog) CreateRecipe(ctx context.Context, name string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.recipes == nil {
		return ErrNotOpen
	}
	if _, exists := mc.recipes.Get(name); exists {
		return ErrExist
	}

	mc.recipes.Set(name, time.Now())
	return nil
}

func (mc *MemoryCatalog) DeleteRecipe(ctx context.Context, name string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.recipes == nil {
		return ErrNotOpen
	}
	if _, ok := mc.recipes.Delete(name); !ok {
		return ErrNotExist
	}

	return nil
}

func (mc *MemoryCatalog) HasRecipe(ctx context.Context, name string) (bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.recipes == nil {
		return false, ErrNotOpen
	}
	_, exists := mc.recipes.Get(name)
	return exists, nil
}

func (mc *MemoryCatalog) ListRecipes(ctx context.Context) ([]string, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.recipes == nil {
		return nil, ErrNotOpen
	}
	return mc.recipes.Keys(), nil
}

package cdn

import (
	"context"
	"errors"
	"os"

	"github.com/ErmitaVulpe/cookbook/index"
	"github.com/ErmitaVulpe/cookbook/log"
	"github.com/google/uuid"
)

// Tx is the handle passed to a Transaction callback. It borrows the store
// and must not be used after the callback returns.
type Tx struct {
	ctx context.Context
	cdn *Cdn
	log *log.Logger

	ID  uuid.UUID
	ops int
}

func newTx(ctx context.Context, c *Cdn) *Tx {
	id := uuid.Must(uuid.NewV7())
	return &Tx{
		ctx: ctx,
		cdn: c,
		log: c.log.Named("tx " + id.String()),
		ID:  id,
	}
}

// CreateRecipe creates the directory and index entry of a new recipe.
func (tx *Tx) CreateRecipe(name string) error {
	const op = "create recipe"
	tx.ops++

	key, err := recipeKey(op, name)
	if err != nil {
		return err
	}

	c := tx.cdn
	if c.index.Contains(key) {
		return newError(ErrAlreadyExists, op, key, nil)
	}

	if err := os.Mkdir(c.recipePath(key), dirMode); err != nil {
		if isExist(err) {
			return newError(ErrAlreadyExists, op, key, err)
		}
		return newError(ErrInternal, op, key, err)
	}

	if err := c.index.Insert(key, 0); err != nil {
		// Lost a race against a create that already inserted the entry
		// after our Contains check; the directory belongs to it.
		return newError(ErrAlreadyExists, op, key, err)
	}

	tx.log.Debug("Created recipe '%s'", key)
	return nil
}

// DeleteRecipe removes the directory tree and index entry of a recipe.
func (tx *Tx) DeleteRecipe(name string) error {
	const op = "delete recipe"
	tx.ops++

	key, err := recipeKey(op, name)
	if err != nil {
		return err
	}

	c := tx.cdn
	if !c.index.Contains(key) {
		return newError(ErrRecipeDoesntExist, op, key, nil)
	}

	if err := os.RemoveAll(c.recipePath(key)); err != nil {
		return newError(ErrInternal, op, key, err)
	}

	if err := c.index.Remove(key); err != nil {
		return newError(ErrRecipeDoesntExist, op, key, err)
	}

	tx.log.Debug("Deleted recipe '%s'", key)
	return nil
}

// UploadIcon normalizes data and replaces the icon of a recipe.
func (tx *Tx) UploadIcon(name string, data []byte) error {
	const op = "upload icon"
	tx.ops++

	key, err := recipeKey(op, name)
	if err != nil {
		return err
	}

	c := tx.cdn
	if !c.index.Contains(key) {
		return newError(ErrRecipeDoesntExist, op, key, nil)
	}

	buf, err := c.normalize(tx.ctx, op, key, data)
	if err != nil {
		return err
	}

	if err := writeAtomic(c.recipePath(key), IconName, buf); err != nil {
		return tx.writeError(op, key, err)
	}

	tx.log.Debug("Stored icon of '%s' (%d bytes)", key, len(buf))
	return nil
}

// UploadImage normalizes data and stores it as the next image of a recipe,
// returning the sequence number it was stored under.
func (tx *Tx) UploadImage(name string, data []byte) (uint32, error) {
	const op = "upload image"
	tx.ops++

	key, err := recipeKey(op, name)
	if err != nil {
		return 0, err
	}

	c := tx.cdn
	if !c.index.Contains(key) {
		return 0, newError(ErrRecipeDoesntExist, op, key, nil)
	}

	// Normalize before taking an id, so rejected input consumes none.
	buf, err := c.normalize(tx.ctx, op, key, data)
	if err != nil {
		return 0, err
	}

	seq, err := c.index.Next(key)
	if err != nil {
		if errors.Is(err, index.ErrNotExist) {
			return 0, newError(ErrRecipeDoesntExist, op, key, err)
		}
		return 0, newError(ErrInternal, op, key, err)
	}

	if err := writeAtomic(c.recipePath(key), formatSequence(seq), buf); err != nil {
		return 0, tx.writeError(op, key, err)
	}

	tx.log.Debug("Stored image %d of '%s' (%d bytes)", seq, key, len(buf))
	return seq, nil
}

// DeleteImages removes stored files of a recipe, see Cdn.DeleteImages.
func (tx *Tx) DeleteImages(name string, files []string) error {
	tx.ops++
	return tx.cdn.DeleteImages(name, files)
}

// writeError classifies a failed writeAtomic. A missing directory means the
// recipe was deleted concurrently.
func (tx *Tx) writeError(op, key string, err error) error {
	if isNotExist(err) {
		return newError(ErrRecipeDoesntExist, op, key, err)
	}

	return newError(ErrInternal, op, key, err)
}

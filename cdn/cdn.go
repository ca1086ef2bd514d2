// Package cdn implements the recipe asset store.
//
// Images of a recipe live in {root}/{lowercase name}/ as an "icon" file and
// files named by a per-recipe sequence number. The next sequence number of
// every recipe is tracked in an in-memory index that is written as a whole to
// {root}/meta.cbor after every successful transaction.
//
// Mutations are only reachable through Transaction. A transaction is not
// atomic: each step takes its own locks, and a failing step leaves earlier
// steps applied. Only the index snapshot is skipped on failure.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ErmitaVulpe/cookbook/imaging"
	"github.com/ErmitaVulpe/cookbook/index"
	"github.com/ErmitaVulpe/cookbook/log"
	"golang.org/x/sync/semaphore"
)

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

type Cdn struct {
	root    string
	options *Options
	log     *log.Logger

	index   *index.Index
	encodes *semaphore.Weighted

	// Lock order: fileMu before the index lock. Mutations only take the
	// index lock, persistence takes both.
	fileMu   sync.RWMutex
	state    state
	metaFile *os.File
}

// New prepares a store rooted at root. Nothing is touched on disk before Open.
func New(root string, opts ...Option) (*Cdn, error) {
	if root == "" {
		return nil, fmt.Errorf("cdn: root path cannot be empty")
	}

	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	return &Cdn{
		root:    filepath.Clean(root),
		options: options,
		log:     options.Logger,
		index:   index.New(),
		encodes: semaphore.NewWeighted(options.MaxConcurrentEncodes),
	}, nil
}

// Open loads the serialized index, creating the root and an empty index file
// when they are missing, and keeps the index file open for writing.
func (c *Cdn) Open(ctx context.Context) error {
	if err := c.open(); err != nil {
		return err
	}

	if c.options.Reconcile {
		report, err := c.Reconcile(ctx)
		if err != nil {
			return err
		}
		if !report.Clean() {
			c.log.Warn("Reconciled asset store: %s", report)
		}
		return nil
	}

	report, err := c.Check(ctx)
	if err != nil {
		return err
	}
	if !report.Clean() {
		c.log.Warn("Asset store diverges from its index: %s", report)
	}

	return nil
}

func (c *Cdn) open() error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	if c.state != stateNew {
		return newError(ErrInternal, "open", "", fmt.Errorf("cdn: store cannot be reopened"))
	}

	if err := os.MkdirAll(c.root, dirMode); err != nil {
		return newError(ErrInternal, "open", "", err)
	}

	metaPath := filepath.Join(c.root, index.FileName)
	file, err := os.OpenFile(metaPath, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return newError(ErrInternal, "open", "", err)
	}

	snapshot, err := c.loadSnapshot(file)
	if err != nil {
		file.Close()
		return newError(ErrInternal, "open", "", err)
	}

	c.index = index.FromSnapshot(snapshot)
	c.metaFile = file
	c.state = stateOpen

	c.log.Info("Opened asset store at '%s' with %d recipes", c.root, len(snapshot))
	return nil
}

// loadSnapshot reads the index file, initializing it when it is empty.
func (c *Cdn) loadSnapshot(file *os.File) (map[string]uint32, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() == 0 {
		// Either a fresh store or a crash between truncate and write.
		// Reconcile recovers recipes of the latter from their directories.
		empty, err := index.Marshal(nil)
		if err != nil {
			return nil, err
		}
		if _, err := file.WriteAt(empty, 0); err != nil {
			return nil, err
		}
		if err := file.Sync(); err != nil {
			return nil, err
		}

		return map[string]uint32{}, nil
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return index.Decode(file)
}

// Close flushes and releases the index file. Every later call fails.
func (c *Cdn) Close(ctx context.Context) error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	if c.state != stateOpen {
		c.state = stateClosed
		return nil
	}

	c.state = stateClosed
	file := c.metaFile
	c.metaFile = nil

	if err := file.Sync(); err != nil {
		file.Close()
		return newError(ErrInternal, "close", "", err)
	}
	if err := file.Close(); err != nil {
		return newError(ErrInternal, "close", "", err)
	}

	c.log.Info("Closed asset store at '%s'", c.root)
	return nil
}

// Root returns the storage root path.
func (c *Cdn) Root() string {
	return c.root
}

// Exists reports whether the recipe has an index entry.
func (c *Cdn) Exists(name string) bool {
	return c.index.Contains(Key(name))
}

// Recipes returns the identifiers of all indexed recipes in ascending order.
func (c *Cdn) Recipes() []string {
	return c.index.Keys()
}

// Snapshot returns a copy of the in-memory index.
func (c *Cdn) Snapshot() map[string]uint32 {
	return c.index.Snapshot()
}

// Transaction runs fn with a handle exposing the mutating operations and
// persists the index once fn returns nil. An error returned by fn is passed
// through unchanged and nothing already done by fn is undone.
func (c *Cdn) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	if err := c.checkOpen("transaction"); err != nil {
		return err
	}

	tx := newTx(ctx, c)
	tx.log.Debug("Transaction started")

	if err := fn(tx); err != nil {
		tx.log.Debug("Transaction failed after %d operations: %v", tx.ops, err)
		return err
	}

	if err := c.persist(); err != nil {
		tx.log.Error("Transaction persist failed after %d operations: %v", tx.ops, err)
		return newError(ErrInternal, "persist", "", err)
	}

	tx.log.Debug("Transaction committed after %d operations", tx.ops)
	return nil
}

// persist truncates the index file and writes a full snapshot.
func (c *Cdn) persist() error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	if c.state != stateOpen {
		return ErrClosed
	}

	buf, err := index.Marshal(c.index.Snapshot())
	if err != nil {
		return err
	}

	if err := c.metaFile.Truncate(0); err != nil {
		return err
	}
	if _, err := c.metaFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := c.metaFile.Write(buf); err != nil {
		return err
	}

	return c.metaFile.Sync()
}

func (c *Cdn) checkOpen(op string) error {
	c.fileMu.RLock()
	defer c.fileMu.RUnlock()

	if c.state != stateOpen {
		return newError(ErrInternal, op, "", ErrClosed)
	}

	return nil
}

// GetImageList lists the files stored for a recipe. The listing is read from
// its directory, not from the index.
func (c *Cdn) GetImageList(name string) ([]string, error) {
	const op = "list images"

	if err := c.checkOpen(op); err != nil {
		return nil, err
	}

	key, err := recipeKey(op, name)
	if err != nil {
		return nil, err
	}

	images, err := listImages(c.recipePath(key))
	if err != nil {
		if isNotExist(err) {
			return nil, newError(ErrRecipeDoesntExist, op, key, nil)
		}
		return nil, newError(ErrInternal, op, key, err)
	}

	return images, nil
}

// ReadImage returns the stored bytes of one file of a recipe.
func (c *Cdn) ReadImage(name, file string) ([]byte, error) {
	const op = "read image"

	if err := c.checkOpen(op); err != nil {
		return nil, err
	}

	key, err := recipeKey(op, name)
	if err != nil {
		return nil, err
	}
	if err := ValidateImageName(file); err != nil {
		return nil, newError(ErrInvalidName, op, key, fmt.Errorf("image '%s'", file))
	}

	data, err := os.ReadFile(filepath.Join(c.recipePath(key), file))
	if err != nil {
		if isNotExist(err) {
			return nil, newError(ErrImageDoesntExist, op, key, nil)
		}
		return nil, newError(ErrInternal, op, key, err)
	}

	return data, nil
}

// DeleteImages removes the named files of a recipe. All names are checked
// before the first removal and repeated names are removed once. The index is
// left untouched so ids are not reused.
func (c *Cdn) DeleteImages(name string, files []string) error {
	const op = "delete images"

	if err := c.checkOpen(op); err != nil {
		return err
	}

	key, err := recipeKey(op, name)
	if err != nil {
		return err
	}

	dir := c.recipePath(key)
	if _, err := os.Stat(dir); err != nil {
		if isNotExist(err) {
			return newError(ErrRecipeDoesntExist, op, key, nil)
		}
		return newError(ErrInternal, op, key, err)
	}

	files = slices.Compact(slices.Sorted(slices.Values(files)))
	for _, file := range files {
		if err := ValidateImageName(file); err != nil {
			return newError(ErrInvalidName, op, key, fmt.Errorf("image '%s'", file))
		}

		info, err := os.Stat(filepath.Join(dir, file))
		if err != nil {
			if isNotExist(err) {
				return newError(ErrImageDoesntExist, op, key, fmt.Errorf("image '%s'", file))
			}
			return newError(ErrInternal, op, key, err)
		}
		if info.IsDir() {
			return newError(ErrImageDoesntExist, op, key, fmt.Errorf("image '%s' is a directory", file))
		}
	}

	for _, file := range files {
		if err := os.Remove(filepath.Join(dir, file)); err != nil {
			if isNotExist(err) {
				return newError(ErrImageDoesntExist, op, key, fmt.Errorf("image '%s'", file))
			}
			return newError(ErrInternal, op, key, err)
		}
	}

	c.log.Debug("Deleted %d images of '%s'", len(files), key)
	return nil
}

func (c *Cdn) recipePath(key string) string {
	return filepath.Join(c.root, key)
}

// normalize converts an uploaded buffer, bounded by the encode semaphore.
// It must never run while an index or file lock is held.
func (c *Cdn) normalize(ctx context.Context, op, key string, buf []byte) ([]byte, error) {
	if err := c.encodes.Acquire(ctx, 1); err != nil {
		return nil, newError(ErrInternal, op, key, err)
	}
	defer c.encodes.Release(1)

	out, err := imaging.Normalize(buf)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, newError(ErrUnsupportedImageFormat, op, key, err)
		}
		return nil, newError(ErrInternal, op, key, err)
	}

	return out, nil
}

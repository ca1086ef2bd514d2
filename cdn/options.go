package cdn

import (
	"fmt"
	"runtime"

	"github.com/ErmitaVulpe/cookbook/log"
)

type Options struct {
	Logger *log.Logger

	// Reconcile repairs divergence between directories and index on Open.
	Reconcile bool
	// MaxConcurrentEncodes bounds simultaneous image normalizations.
	MaxConcurrentEncodes int64
}

type Option func(*Options) error

func newDefaultOptions() *Options {
	return &Options{
		Logger:               log.Nop(),
		Reconcile:            false,
		MaxConcurrentEncodes: int64(runtime.GOMAXPROCS(0)),
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Options) error {
		if logger == nil {
			return fmt.Errorf("cdn: logger cannot be nil")
		}
		o.Logger = logger
		return nil
	}
}

// WithReconcile enables repairing the index from the directory tree on Open.
func WithReconcile() Option {
	return func(o *Options) error {
		o.Reconcile = true
		return nil
	}
}

func WithMaxConcurrentEncodes(n int) Option {
	return func(o *Options) error {
		if n < 1 {
			return fmt.Errorf("cdn: max concurrent encodes must be positive, got %d", n)
		}
		o.MaxConcurrentEncodes = int64(n)
		return nil
	}
}

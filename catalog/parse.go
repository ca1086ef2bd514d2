package catalog

import (
	"fmt"
	"strings"
)

// Parse returns an unopened catalog for address:
//
//	:memory:                       in-process catalog
//	sqlite://<path>                SQLite database file, or sqlite://:memory:
//	postgres://<user>:<pass>@...   PostgreSQL, also postgresql://
func Parse(address string) (Catalog, error) {
	address = strings.TrimSpace(address)
	if !strings.Contains(address, ":") {
		return nil, fmt.Errorf("failed to parse address '%s': %w", address, ErrMalformedAddress)
	}

	if address == ":memory:" {
		return NewMemoryCatalog(), nil
	}

	switch {
	case strings.HasPrefix(address, "sqlite://"):
		return NewSQLiteCatalog(strings.TrimPrefix(address, "sqlite://"))
	case strings.HasPrefix(address, "postgres://"), strings.HasPrefix(address, "postgresql://"):
		return NewPostgresCatalog(address)
	}

	return nil, fmt.Errorf("failed to parse address '%s': %w", address, ErrUnknownProtocol)
}

package cdn

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ErmitaVulpe/cookbook/index"
)

func TestCdn_PersistFailure(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Open(t.Context()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(t.Context())

	writable := store.metaFile
	readonly, err := os.Open(filepath.Join(root, index.FileName))
	if err != nil {
		t.Fatalf("Open meta failed: %v", err)
	}

	store.fileMu.Lock()
	store.metaFile = readonly
	store.fileMu.Unlock()

	err = store.Transaction(t.Context(), func(tx *Tx) error {
		return tx.CreateRecipe("lasagna")
	})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("Expected ErrInternal, got %v", err)
	}
	if StatusCode(err) != 500 {
		t.Errorf("Expected status 500, got %d", StatusCode(err))
	}

	// Memory stays ahead of disk.
	if !store.Exists("lasagna") {
		t.Errorf("Expected entry to stay in memory")
	}

	store.fileMu.Lock()
	store.metaFile = writable
	store.fileMu.Unlock()
	readonly.Close()

	if err := store.Transaction(t.Context(), func(tx *Tx) error { return nil }); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	file, err := os.Open(filepath.Join(root, index.FileName))
	if err != nil {
		t.Fatalf("Open meta failed: %v", err)
	}
	defer file.Close()

	snapshot, err := index.Decode(file)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := snapshot["lasagna"]; !ok {
		t.Errorf("Expected recovered commit to persist the entry, got %v", snapshot)
	}
}

func TestRequiredCounter(t *testing.T) {
	root := t.TempDir()
	store := &Cdn{root: root}

	dir := filepath.Join(root, "r")
	if err := os.Mkdir(dir, dirMode); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	counter, err := store.requiredCounter("r")
	if err != nil {
		t.Fatalf("requiredCounter failed: %v", err)
	}
	if counter != 0 {
		t.Errorf("Expected 0 for an empty directory, got %d", counter)
	}

	for _, name := range []string{"icon", "3", "07", "notes", "4294967295"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, fileMode); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	counter, err = store.requiredCounter("r")
	if err != nil {
		t.Fatalf("requiredCounter failed: %v", err)
	}
	if counter != 4294967295 {
		t.Errorf("Expected saturated counter, got %d", counter)
	}
}

func TestParseSequence(t *testing.T) {
	tests := map[string]bool{
		"0":          true,
		"42":         true,
		"4294967295": true,
		"4294967296": false,
		"007":        false,
		"-1":         false,
		"+1":         false,
		"icon":       false,
		"":           false,
	}

	for name, valid := range tests {
		_, err := parseSequence(name)
		if (err == nil) != valid {
			t.Errorf("Expected parseSequence(%q) valid=%v, got %v", name, valid, err)
		}
	}
}

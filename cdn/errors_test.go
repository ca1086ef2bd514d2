package cdn_test

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/ErmitaVulpe/cookbook/cdn"
)

func TestStatusCode(t *testing.T) {
	tests := map[string]struct {
		err    error
		status int
	}{
		"nil":      {nil, http.StatusOK},
		"exists":   {cdn.ErrAlreadyExists, http.StatusConflict},
		"recipe":   {cdn.ErrRecipeDoesntExist, http.StatusNotFound},
		"image":    {cdn.ErrImageDoesntExist, http.StatusNotFound},
		"format":   {cdn.ErrUnsupportedImageFormat, http.StatusNotImplemented},
		"name":     {cdn.ErrInvalidName, http.StatusBadRequest},
		"internal": {cdn.ErrInternal, http.StatusInternalServerError},
		"foreign":  {fs.ErrPermission, http.StatusInternalServerError},
		"wrapped":  {fmt.Errorf("handler: %w", cdn.ErrRecipeDoesntExist), http.StatusNotFound},
		"closed":   {cdn.ErrClosed, http.StatusInternalServerError},
	}

	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			if got := cdn.StatusCode(test.err); got != test.status {
				tst.Errorf("Expected %d, got %d", test.status, got)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	store := openStore(t, t.TempDir())

	err := store.DeleteImages("missing", []string{"icon"})

	var cdnErr *cdn.Error
	if !errors.As(err, &cdnErr) {
		t.Fatalf("Expected *cdn.Error, got %T", err)
	}
	if cdnErr.Kind != cdn.ErrRecipeDoesntExist {
		t.Errorf("Expected kind ErrRecipeDoesntExist, got %v", cdnErr.Kind)
	}
	if cdnErr.Recipe != "missing" {
		t.Errorf("Expected recipe 'missing', got '%s'", cdnErr.Recipe)
	}
	if cdn.KindOf(err) != cdn.ErrRecipeDoesntExist {
		t.Errorf("Expected KindOf to report ErrRecipeDoesntExist, got %v", cdn.KindOf(err))
	}
	if cdn.KindOf(nil) != nil {
		t.Errorf("Expected nil kind for nil error")
	}
}

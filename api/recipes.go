package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ErmitaVulpe/cookbook/catalog"
	"github.com/ErmitaVulpe/cookbook/cdn"
	"github.com/gorilla/mux"
)

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.ListRecipes(r.Context())
	if err != nil {
		s.log.Error("Failed to list recipes: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, names)
}

// handleCreateRecipe inserts the catalog row first and then creates the asset
// folder with the optional icon. A failed transaction removes both again.
func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	form, err := s.readUploadForm(r, "name", func(field string) bool { return field == "d" })
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(form.images) > 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	key := cdn.Key(form.recipe)
	if cdn.ValidateRecipeName(form.recipe) != nil || cdn.ValidateRecipeName(key) != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.catalog.CreateRecipe(ctx, key); err != nil {
		if errors.Is(err, catalog.ErrExist) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.log.Error("Failed to insert recipe '%s': %v", key, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	created := false
	err = s.transaction(ctx, func(tx *cdn.Tx) error {
		if err := tx.CreateRecipe(key); err != nil {
			return err
		}
		created = true
		if len(form.images) == 1 {
			return tx.UploadIcon(key, form.images[0])
		}
		return nil
	})
	if err != nil {
		s.compensateCreate(context.WithoutCancel(ctx), key, created)
		s.fail(w, r, err)
		return
	}

	s.log.Info("Created recipe '%s'", key)
	w.WriteHeader(http.StatusCreated)
}

// compensateCreate undoes a create whose transaction failed. The asset folder
// is only removed when this request created it.
func (s *Server) compensateCreate(ctx context.Context, key string, created bool) {
	if created {
		err := s.transaction(ctx, func(tx *cdn.Tx) error {
			return tx.DeleteRecipe(key)
		})
		if err != nil {
			s.log.Error("Failed to remove assets of '%s' after failed create: %v", key, err)
		}
	}

	if err := s.catalog.DeleteRecipe(ctx, key); err != nil {
		s.log.Error("Failed to remove recipe '%s' after asset failure: %v", key, err)
	}
}

// handleDeleteRecipe removes the asset folder before the catalog row.
func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	err := s.transaction(ctx, func(tx *cdn.Tx) error {
		return tx.DeleteRecipe(name)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	key := cdn.Key(name)
	if err := s.catalog.DeleteRecipe(ctx, key); err != nil {
		if !errors.Is(err, catalog.ErrNotExist) {
			s.log.Error("Failed to delete recipe '%s' from catalog: %v", key, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.log.Warn("Recipe '%s' had assets but no catalog entry", key)
	}

	s.log.Info("Deleted recipe '%s'", key)
	w.WriteHeader(http.StatusOK)
}

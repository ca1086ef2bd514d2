package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/ErmitaVulpe/cookbook/cdn"
	"github.com/ErmitaVulpe/cookbook/imaging"
	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/mux"
)

const maxDeleteBodySize = 1 << 20

// DeleteImagesRequest is the body of POST /cdn/img/delete_images.
type DeleteImagesRequest struct {
	RecipeName string   `json:"recipe_name" cbor:"recipe_name"`
	ImageNames []string `json:"image_names" cbor:"image_names"`
}

var deleteDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	recipe, image := vars["recipe"], vars["image"]

	if strings.HasPrefix(recipe, ".") || strings.HasPrefix(image, ".") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	data, err := s.cdn.ReadImage(recipe, image)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	etag := fmt.Sprintf("\"%x\"", xxhash.Sum64(data))

	header := w.Header()
	header.Set("ETag", etag)
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Cross-Origin-Resource-Policy", "cross-origin")

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Type", imaging.CanonicalMIME)
	header.Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(data)
	}
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}

	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.cdn.GetImageList(mux.Vars(r)["recipe"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleUploadIcon(w http.ResponseWriter, r *http.Request) {
	form, err := s.readUploadForm(r, "r", func(field string) bool { return field == "d" })
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(form.images) != 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = s.transaction(r.Context(), func(tx *cdn.Tx) error {
		return tx.UploadIcon(form.recipe, form.images[0])
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	form, err := s.readUploadForm(r, "r", func(field string) bool { return strings.HasPrefix(field, "d") })
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ids := make([]uint32, 0, len(form.images))
	err = s.transaction(r.Context(), func(tx *cdn.Tx) error {
		for _, image := range form.images {
			seq, err := tx.UploadImage(form.recipe, image)
			if err != nil {
				return err
			}
			ids = append(ids, seq)
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleDeleteImages(w http.ResponseWriter, r *http.Request) {
	body, err := readLimited(r.Body, maxDeleteBodySize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var request DeleteImagesRequest
	if err := decodeBody(r.Header.Get("Content-Type"), body, &request); err != nil {
		s.log.Debug("Invalid delete_images body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = s.transaction(r.Context(), func(tx *cdn.Tx) error {
		return tx.DeleteImages(request.RecipeName, request.ImageNames)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// decodeBody decodes CBOR for application/cbor and JSON otherwise.
// Unknown fields are rejected in both encodings.
func decodeBody(contentType string, body []byte, v any) error {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/cbor" {
		return deleteDecMode.Unmarshal(body, v)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("api: trailing data after JSON body")
	}

	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

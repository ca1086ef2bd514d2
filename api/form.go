package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/ErmitaVulpe/cookbook/cdn"
)

// statusError ends a request with its status and no body.
type statusError int

func (se statusError) Error() string {
	return fmt.Sprintf("api: %s", http.StatusText(int(se)))
}

const (
	errBadRequest      = statusError(http.StatusBadRequest)
	errPayloadTooLarge = statusError(http.StatusRequestEntityTooLarge)
)

// uploadForm is a parsed multipart upload: one text field naming the recipe
// and any number of image fields in the order they were sent.
type uploadForm struct {
	recipe string
	images [][]byte
}

// readUploadForm streams the multipart body of r. nameField holds the recipe
// name, isImage selects image fields. Any other field is rejected.
func (s *Server) readUploadForm(r *http.Request, nameField string, isImage func(string) bool) (*uploadForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, errBadRequest
	}

	form := &uploadForm{}
	seenName := false

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errBadRequest
		}

		field := part.FormName()
		switch {
		case field == nameField && !seenName:
			name, err := readLimited(part, cdn.MaxRecipeNameLength)
			part.Close()
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(name) {
				return nil, errBadRequest
			}
			form.recipe = string(name)
			seenName = true

		case field != nameField && isImage(field):
			image, err := readLimited(part, s.maxImageSize)
			part.Close()
			if err != nil {
				return nil, err
			}
			s.metrics.observeUpload(len(image))
			form.images = append(form.images, image)

		default:
			part.Close()
			return nil, errBadRequest
		}
	}

	if !seenName {
		return nil, errBadRequest
	}

	return form, nil
}

// readLimited reads r fully, failing with 413 once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errBadRequest
	}
	if int64(len(data)) > limit {
		return nil, errPayloadTooLarge
	}

	return data, nil
}

// writeError answers with a statusError, or falls back to the store mapping.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status statusError
	if errors.As(err, &status) {
		s.log.Debug("%s %s rejected: %v", r.Method, r.URL.Path, err)
		w.WriteHeader(int(status))
		return
	}

	s.fail(w, r, err)
}

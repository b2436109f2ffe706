package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/middleware"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object into dst. Unknown fields are
// rejected so typos in override flags are not silently ignored.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// readBody decodes dst and writes the error response itself when that fails.
func readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeJSON(r, dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{
			Code:    "BODY_TOO_LARGE",
			Message: "request body too large",
		}})
		return false
	}
	requestError(w, err.Error())
	return false
}

// pathID binds the {id} path parameter the way generated chi wrappers do.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		requestError(w, "invalid format for parameter id: must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pageParams binds the optional ?page= and ?limit= query parameters.
func pageParams(w http.ResponseWriter, r *http.Request) (domain.PageParams, bool) {
	var page, limit *int
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		requestError(w, "invalid format for parameter page")
		return domain.PageParams{}, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		requestError(w, "invalid format for parameter limit")
		return domain.PageParams{}, false
	}
	return domain.NewPageParams(page, limit), true
}

// caller returns the authenticated actor. Routes without the authenticator
// in front of them get 401.
func caller(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorDetail{
			Code:    "UNAUTHENTICATED",
			Message: "authentication required",
		}})
	}
	return a, ok
}

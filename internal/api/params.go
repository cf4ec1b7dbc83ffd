package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/geosocial/proximity/internal/model"
)

// decodeJSON reads the request body into v; a malformed body is a validation error.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("body", "invalid json")
	}
	return nil
}

// floatParam parses an optional float query parameter; absent yields def.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, model.NewValidationError(name, "must be a number")
	}
	return f, nil
}

func requiredFloatParam(r *http.Request, name string) (float64, error) {
	if r.URL.Query().Get(name) == "" {
		return 0, model.NewValidationError(name, "required")
	}
	return floatParam(r, name, 0)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

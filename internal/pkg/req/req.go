/*
Package req provides helpers for parsing and binding HTTP request bodies.
*/
package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"callingcard/internal/pkg/errs"
)

// MaxJSONBodySize bounds every JSON body accepted by the API.
const MaxJSONBodySize int64 = 64 << 10 // 64 KiB

// BindJSON decodes the JSON request body into dst, rejecting unknown fields and trailing data.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	if customErr := requireJSON(r); customErr != nil {
		return customErr
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// ReadJSON returns the raw request body after checking it is a single well-formed JSON value.
func ReadJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, *errs.CustomError) {
	if customErr := requireJSON(r); customErr != nil {
		return nil, customErr
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxJSONBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	if !json.Valid(body) {
		return nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}

	return json.RawMessage(body), nil
}

func requireJSON(r *http.Request) *errs.CustomError {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}
	return nil
}

package errs

import "net/http"

// errorMap holds the user message and HTTP status for every code.
// A zero Status means 200: the failure is reported in the response body only.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx
	ErrVicinityInvalid:      {Code: ErrVicinityInvalid, Message: "Invalid vicinity code.", Status: http.StatusBadRequest},
	ErrPayloadEmpty:         {Code: ErrPayloadEmpty, Message: "Nothing to publish."},
	ErrPayloadTooLarge:      {Code: ErrPayloadTooLarge, Message: "Message exceeds %d bytes."},
	ErrOperationUnsupported: {Code: ErrOperationUnsupported, Message: "Unsupported operation."},
	ErrConsentRequired:      {Code: ErrConsentRequired, Message: "Nearby permission is required."},

	// 3xxx
	ErrUnauthorized:    {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidProfile:  {Code: ErrInvalidProfile, Message: "A name and a valid email address are required.", Status: http.StatusBadRequest},
	ErrAccountNotFound: {Code: ErrAccountNotFound, Message: "Account not found.", Status: http.StatusUnauthorized},
	ErrSessionReplaced: {Code: ErrSessionReplaced, Message: "You connected from another device."},

	// 4xxx
	ErrPreferenceKeyInvalid: {Code: ErrPreferenceKeyInvalid, Message: "Invalid preference key.", Status: http.StatusBadRequest},
	ErrPreferenceNotFound:   {Code: ErrPreferenceNotFound, Message: "Preference not found.", Status: http.StatusNotFound},
	ErrPhotoTypeInvalid:     {Code: ErrPhotoTypeInvalid, Message: "Unsupported photo format.", Status: http.StatusBadRequest},
	ErrPhotoTooLarge:        {Code: ErrPhotoTooLarge, Message: "Photo is too large.", Status: http.StatusBadRequest},
	ErrPhotosDisabled:       {Code: ErrPhotosDisabled, Message: "Photo uploads are not available.", Status: http.StatusServiceUnavailable},

	// 5xxx
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File storage failed. Please try again.", Status: http.StatusBadGateway},
	ErrDatabaseFailed:    {Code: ErrDatabaseFailed, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}

/*
Package errs provides the application error type and its code table.

Codes identify business and system failures both inside the server and on the wire,
in REST responses and in websocket ERROR frames.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after the JSON body.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Nearby Discovery Errors
const (
	// ErrVicinityInvalid indicates a malformed vicinity code.
	ErrVicinityInvalid = 2101

	// ErrPayloadEmpty indicates a publish request without payload.
	ErrPayloadEmpty = 2201

	// ErrPayloadTooLarge indicates a publish payload above MaxPayloadBytes.
	ErrPayloadTooLarge = 2202

	// ErrOperationUnsupported indicates an unknown websocket frame type.
	ErrOperationUnsupported = 2203

	// ErrConsentRequired indicates that the account has not opted in to Nearby.
	ErrConsentRequired = 2301
)

// 3xxx: Sign-in and Session Errors
const (
	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3001

	// ErrInvalidProfile indicates a sign-in profile without a valid name or email.
	ErrInvalidProfile = 3002

	// ErrAccountNotFound indicates the token references an unknown account.
	ErrAccountNotFound = 3003

	// ErrSessionReplaced indicates the connection was superseded by a newer one.
	ErrSessionReplaced = 3004
)

// 4xxx: Preference and Photo Errors
const (
	// ErrPreferenceKeyInvalid indicates a malformed preference key.
	ErrPreferenceKeyInvalid = 4001

	// ErrPreferenceNotFound indicates that no value is stored under the key.
	ErrPreferenceNotFound = 4002

	// ErrPhotoTypeInvalid indicates an unsupported photo file name or MIME type.
	ErrPhotoTypeInvalid = 4101

	// ErrPhotoTooLarge indicates a photo above the size limit.
	ErrPhotoTooLarge = 4102

	// ErrPhotosDisabled indicates that no object storage is configured.
	ErrPhotosDisabled = 4103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified server error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates an object storage failure.
	ErrFileStorageFailed = 5001

	// ErrDatabaseFailed indicates a database failure.
	ErrDatabaseFailed = 5002
)

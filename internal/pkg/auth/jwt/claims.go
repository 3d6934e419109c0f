package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a Calling Card identity token.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the account UUID.
	ID string `json:"id"`

	// Email is the signed-in email address.
	Email string `json:"email"`

	// Name is the display name at sign-in time.
	Name string `json:"name"`
}

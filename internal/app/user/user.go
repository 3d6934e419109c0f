/*
Package user defines the calling card exchanged between nearby users.

A User is serialized as a small JSON object and carried verbatim as the payload of a
Nearby message. The photo URL is encoded as a plain string.
*/
package user

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"strings"
)

// ErrMissingField is returned by Decode when a required field is absent or empty.
var ErrMissingField = errors.New("user: required field missing")

// User is the contact profile a person broadcasts.
type User struct {
	// Name is the display name.
	Name string

	// EmailAddress is the contact email.
	EmailAddress string

	// PhotoURL is optional.
	PhotoURL *url.URL
}

// wireUser is the JSON shape of a User.
type wireUser struct {
	Name         *string `json:"name"`
	EmailAddress *string `json:"emailAddress"`
	PhotoURL     string  `json:"photoUrl,omitempty"`
}

// New builds a User, parsing photoURL when it is not empty.
func New(name, emailAddress, photoURL string) (User, error) {
	u := User{Name: name, EmailAddress: emailAddress}

	if photoURL != "" {
		parsed, err := url.Parse(photoURL)
		if err != nil {
			return User{}, fmt.Errorf("user: invalid photo url: %w", err)
		}
		u.PhotoURL = parsed
	}

	return u, nil
}

// Equal reports whether u and other carry the same name, email and photo URL.
func (u User) Equal(other User) bool {
	return u.Name == other.Name &&
		u.EmailAddress == other.EmailAddress &&
		u.photoString() == other.photoString()
}

// Valid reports whether u has a name and an email address.
func (u User) Valid() bool {
	return strings.TrimSpace(u.Name) != "" && strings.TrimSpace(u.EmailAddress) != ""
}

// ValidEmail reports whether EmailAddress parses as a bare RFC 5322 address.
func (u User) ValidEmail() bool {
	addr, err := mail.ParseAddress(u.EmailAddress)
	return err == nil && addr.Address == u.EmailAddress
}

// String returns "Name <email>".
func (u User) String() string {
	return fmt.Sprintf("%s <%s>", u.Name, u.EmailAddress)
}

func (u User) photoString() string {
	if u.PhotoURL == nil {
		return ""
	}
	return u.PhotoURL.String()
}

// MarshalJSON encodes the photo URL as a plain string.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireUser{
		Name:         &u.Name,
		EmailAddress: &u.EmailAddress,
		PhotoURL:     u.photoString(),
	})
}

// UnmarshalJSON decodes the wire shape without the strictness of Decode.
// It is used for lists read back from local storage.
func (u *User) UnmarshalJSON(data []byte) error {
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return u.fromWire(w)
}

func (u *User) fromWire(w wireUser) error {
	decoded := User{}
	if w.Name != nil {
		decoded.Name = *w.Name
	}
	if w.EmailAddress != nil {
		decoded.EmailAddress = *w.EmailAddress
	}

	if w.PhotoURL != "" {
		parsed, err := url.Parse(w.PhotoURL)
		if err != nil {
			return fmt.Errorf("user: invalid photo url: %w", err)
		}
		decoded.PhotoURL = parsed
	}

	*u = decoded
	return nil
}

// Encode returns the message payload for u.
func Encode(u User) ([]byte, error) {
	return json.Marshal(u)
}

// Decode parses a message payload. Unknown fields, trailing data and a missing
// name or email are errors; no partially decoded User is ever returned.
func Decode(payload []byte) (User, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()

	var w wireUser
	if err := decoder.Decode(&w); err != nil {
		return User{}, fmt.Errorf("user: decode payload: %w", err)
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return User{}, errors.New("user: trailing data after payload")
	}

	if w.Name == nil || w.EmailAddress == nil {
		return User{}, ErrMissingField
	}

	var u User
	if err := u.fromWire(w); err != nil {
		return User{}, err
	}

	if !u.Valid() {
		return User{}, ErrMissingField
	}

	return u, nil
}

// EncodeList serializes a list of users for storage.
func EncodeList(users []User) ([]byte, error) {
	if users == nil {
		users = []User{}
	}
	return json.Marshal(users)
}

// DecodeList parses a stored list of users.
func DecodeList(data []byte) ([]User, error) {
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("user: decode list: %w", err)
	}
	return users, nil
}

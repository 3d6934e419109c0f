/*
Package randx generates random identifiers and validates vicinity codes.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars is the alphabet for generated vicinity codes.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the size of the Base62 alphabet.
	Base62Len = int64(len(Base62Chars))

	// VicinityCodeLength is the length of generated vicinity codes.
	VicinityCodeLength = 6

	// MinVicinityLength and MaxVicinityLength bound user-chosen vicinity codes.
	MinVicinityLength = 4
	MaxVicinityLength = 32

	vicinityExtraChars = "-_"
)

// VicinityCode returns a random Base62 vicinity code drawn from crypto/rand.
func VicinityCode() (string, error) {
	result := make([]byte, VicinityCodeLength)

	for i := 0; i < VicinityCodeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for vicinity code: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// IsValidVicinity reports whether code is 4-32 characters of Base62, '-' or '_'.
func IsValidVicinity(code string) bool {
	if len(code) < MinVicinityLength || len(code) > MaxVicinityLength {
		return false
	}

	for _, char := range code {
		if !strings.ContainsRune(Base62Chars, char) && !strings.ContainsRune(vicinityExtraChars, char) {
			return false
		}
	}

	return true
}

// SessionID returns a new identifier for a websocket session.
func SessionID() string {
	return uuid.NewString()
}

// RequestID returns a new identifier correlating a websocket request with its status.
func RequestID() string {
	return uuid.NewString()
}

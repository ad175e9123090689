// Package idgen provides URL-safe unguessable token generation backed by
// nanoid. Envelope signing links embed these tokens, so the random portion
// is sized well beyond brute-force reach (24 chars over a 62-char alphabet).
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for generated tokens.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TokenLength is the number of random characters in a signing token.
var TokenLength = 24

// SigningToken returns a new unguessable envelope signing token.
func SigningToken() (string, error) {
	tok, err := nanoid.Generate(Alphabet, TokenLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return "sig_" + tok, nil
}

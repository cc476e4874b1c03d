package idgen

import (
	"github.com/google/uuid"
)

// New generates a random UUID string, used for request IDs and OAuth
// state/nonce values.
func New() string {
	return uuid.New().String()
}

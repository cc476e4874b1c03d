package storage

import (
	"context"

	"pointtbridge/internal/auth"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Tokens
	LoadToken(ctx context.Context) (*auth.Token, error)
	SaveToken(ctx context.Context, token *auth.Token) error

	// Lifecycle
	Close() error
}

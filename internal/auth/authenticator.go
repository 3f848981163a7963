// Package auth provides account registration, credential checks and session
// tokens for the cashflow API. Parties named in obligations do not need an
// account; accounts only gate who may record and delete obligations.
package auth

import (
	"context"

	"github.com/mmynk/cashflow/internal/models"
)

// Authenticator registers and verifies accounts. The credential format is up
// to the implementation.
type Authenticator interface {
	// Register creates a new account. Emails are matched case-insensitively.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate returns the account whose credential matches.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential reports whether credential is acceptable for a new
	// account.
	ValidateCredential(credential string) error
}

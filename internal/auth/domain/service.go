package domain

import "context"

// Verifier turns a bearer or cookie token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

package auth

import "context"

// Persister stores credentials outside the process so a session survives restarts.
// Load returns ErrNoCredentials when nothing is stored.
type Persister interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Delete(ctx context.Context) error
}

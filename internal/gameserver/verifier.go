package gameserver

import (
	"context"
)

// IdentityVerifier confirms that a channel may act as the claimed user. The
// coordinator calls it before binding an identity to a channel.
type IdentityVerifier interface {
	Verify(ctx context.Context, userID int64, username, token string) error
}

// VerifierFunc adapts a function to IdentityVerifier.
type VerifierFunc func(ctx context.Context, userID int64, username, token string) error

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, userID int64, username, token string) error {
	return f(ctx, userID, username, token)
}

// TrustIdentity accepts every claim. It is used when identity tokens are not
// required, where the claimed user must still exist in storage.
var TrustIdentity IdentityVerifier = VerifierFunc(func(context.Context, int64, string, string) error {
	return nil
})

package logfs

import (
	"context"
	"os"
)

// Credentials identify the caller of an operation. New inodes take their
// ownership from them.
type Credentials struct {
	Uid uint32
	Gid uint32
}

type credentialsKey struct{}

// WithCredentials returns a context carrying c.
func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, c)
}

// CredentialsFrom returns the credentials carried by ctx, or the identity
// of the current process when there are none.
func CredentialsFrom(ctx context.Context) Credentials {
	if c, ok := ctx.Value(credentialsKey{}).(Credentials); ok {
		return c
	}
	return Credentials{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
}

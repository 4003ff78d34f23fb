// Package auth answers one question for the poll: does the current call carry
// authorization for a given identity?
package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotAuthorized = errors.New("not authorized")

// Oracle aborts an operation when the invocation is not authorized to act as
// identity. It runs before any domain validation that could leak state.
type Oracle interface {
	RequireAuth(ctx context.Context, identity string) error
}

type principalKey struct{}

// WithPrincipal records the authenticated caller on ctx.
func WithPrincipal(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, principalKey{}, identity)
}

func PrincipalFrom(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}

// ContextOracle authorizes exactly the principal stored on the context.
type ContextOracle struct{}

func (ContextOracle) RequireAuth(ctx context.Context, identity string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return fmt.Errorf("%w: no authenticated caller", ErrNotAuthorized)
	}
	if p != identity {
		return fmt.Errorf("%w: caller %q cannot act as %q", ErrNotAuthorized, p, identity)
	}
	return nil
}

// AllowAll authorizes every call.
type AllowAll struct{}

func (AllowAll) RequireAuth(context.Context, string) error {
	return nil
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, identity string) error

func (f OracleFunc) RequireAuth(ctx context.Context, identity string) error {
	return f(ctx, identity)
}

package auth

import "context"

type credentialKey struct{}

// credential is the token one request carries, decoded once.
type credential struct {
	token   string
	claims  *Claims
	subject string
}

// WithToken returns a context whose execution service calls carry token
// instead of the session's.
func WithToken(ctx context.Context, token string) context.Context {
	claims, _ := Inspect(token)
	return context.WithValue(ctx, credentialKey{}, credential{
		token:   token,
		claims:  claims,
		subject: SubjectOf(token, claims),
	})
}

func credentialFrom(ctx context.Context) (credential, bool) {
	if ctx == nil {
		return credential{}, false
	}
	c, ok := ctx.Value(credentialKey{}).(credential)
	return c, ok
}

package apiclient

import "context"

// Credentials identify the caller to the admissions backend
type Credentials struct {
	Token      string
	CustomerID string
	UserID     string
}

type credentialsKey struct{}

// WithCredentials attaches per-session credentials to ctx
func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, c)
}

// CredentialsFrom returns the credentials stored in ctx, if any
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(credentialsKey{}).(Credentials)
	return c, ok
}

// merge fills empty fields of c from defaults
func (c Credentials) merge(defaults Credentials) Credentials {
	if c.Token == "" {
		c.Token = defaults.Token
	}
	if c.CustomerID == "" {
		c.CustomerID = defaults.CustomerID
	}
	if c.UserID == "" {
		c.UserID = defaults.UserID
	}
	return c
}

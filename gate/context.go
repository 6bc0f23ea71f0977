package gate

import (
	"context"
	"slices"
)

type contextKey struct{}

// Info is what downstream handlers can learn about the admitted key.
type Info struct {
	KeyID     string   `json:"keyId"`
	OwnerID   string   `json:"ownerId"`
	Scopes    []string `json:"scopes"`
	Remaining float64  `json:"-"`
}

// HasScope reports whether the admitted key carries scope.
func (i Info) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// InfoFromResult builds the Info of an admitted request.
func InfoFromResult(r *Result) Info {
	return Info{
		KeyID:     r.KeyID,
		OwnerID:   r.OwnerID,
		Scopes:    r.Scopes,
		Remaining: r.Remaining,
	}
}

// NewContext returns a copy of ctx carrying info.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// FromContext returns the Info stored by NewContext.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(contextKey{}).(Info)
	return info, ok
}

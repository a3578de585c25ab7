package orgcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type contextKey struct{}

// WithOrgID stamps the tenant organization onto the context.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, contextKey{}, orgID)
}

// OrgIDFromContext returns the tenant organization, if any.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	orgID, ok := ctx.Value(contextKey{}).(snowflake.ID)
	return orgID, ok
}

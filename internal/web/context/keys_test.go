package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.NotNil(t, Logger(ctx))
	assert.Equal(t, schema.RequestContext{}, GetRequestContext(ctx))

	logger := zap.NewExample()
	rc := schema.RequestContext{Principal: "u-1", Roles: []string{"admin"}}

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetLogger(ctx, logger)
	ctx = SetRequestContext(ctx, rc)

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Same(t, logger, Logger(ctx))
	assert.Equal(t, rc, GetRequestContext(ctx))
	assert.True(t, GetRequestContext(ctx).HasRole("admin"))
}

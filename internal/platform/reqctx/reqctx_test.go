package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorOr(t *testing.T) {
	ctx := SetUserID(context.Background(), "user-1")

	assert.Equal(t, "explicit", ActorOr(ctx, "explicit"))
	assert.Equal(t, "user-1", ActorOr(ctx, ""))
	assert.Equal(t, "", ActorOr(context.Background(), ""))
}

func TestRequestValues(t *testing.T) {
	ctx := SetRequestID(context.Background(), "req-9")
	ctx = SetSource(ctx, "cli")

	assert.Equal(t, "req-9", GetRequestID(ctx))
	assert.Equal(t, "cli", GetSource(ctx))
	assert.Equal(t, "", GetUserID(ctx))
}

package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizationContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrOrganizationIDNotFound)

	ctx := WithOrganizationID(context.Background(), "org_1")
	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "org_1", got)
	assert.Equal(t, "org_1", MustFromContext(ctx))

	assert.Panics(t, func() { MustFromContext(context.Background()) })
}

func TestRequestIDContext(t *testing.T) {
	_, err := FromRequestIDContext(context.Background())
	assert.ErrorIs(t, err, ErrNoRequestIDInContext)

	got, err := FromRequestIDContext(WithRequestID(context.Background(), "req-1"))
	require.NoError(t, err)
	assert.Equal(t, "req-1", got)
}

func TestEnsureMatches(t *testing.T) {
	ctx := WithOrganizationID(context.Background(), "org_1")

	assert.NoError(t, EnsureMatches(ctx, ""))
	assert.NoError(t, EnsureMatches(ctx, "org_1"))
	assert.Error(t, EnsureMatches(ctx, "org_2"))
	assert.ErrorIs(t, EnsureMatches(context.Background(), "org_1"), ErrOrganizationIDNotFound)
}

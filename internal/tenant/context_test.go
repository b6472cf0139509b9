package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tn, err := New("  acme_co-1 ")
	require.NoError(t, err)
	assert.Equal(t, "acme_co-1", tn.String())

	_, err = New("")
	assert.Error(t, err)
	_, err = New("acme; drop")
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithTenant(context.Background(), Tenant{ID: "acme"})
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "acme", got.ID)

	_, ok = FromContext(ContextWithTenant(context.Background(), Tenant{}))
	assert.False(t, ok, "an empty tenant is not a tenant")
}

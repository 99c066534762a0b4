package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	_, ok := GetTenantIdFromContext(ctx)
	assert.False(t, ok)

	ctx = SetTenantIdInContext(ctx, "")
	_, ok = GetTenantIdFromContext(ctx)
	assert.False(t, ok, "empty tenant counts as missing")

	ctx = SetTenantIdInContext(ctx, "tenant-a")
	ctx = SetUserIdInContext(ctx, 7)
	ctx = SetUserNameInContext(ctx, "Maria")
	ctx = SetCorrelationIdInContext(ctx, "corr-1")

	tenantId, ok := GetTenantIdFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tenant-a", tenantId)
	userId, ok := GetUserIdFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, 7, userId)
	name, _ := GetUserNameFromContext(ctx)
	assert.Equal(t, "Maria", name)
	cid, _ := GetCorrelationIdFromContext(ctx)
	assert.Equal(t, "corr-1", cid)
}

func TestArchiveObjectName(t *testing.T) {
	assert.Equal(t, "nfe/tenant-a/3525.xml", ArchiveObjectName("tenant-a", "3525"))
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		Name  string `validate:"required"`
		Width int    `validate:"oneof=58 80"`
	}
	assert.NoError(t, ValidateStruct(req{Name: "x", Width: 58}))

	err := ValidateStruct(req{Width: 70})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "req.Name failed required")
	assert.Contains(t, err.Error(), "req.Width must satisfy oneof=58 80")
}

func TestRedisLockerWithoutClient(t *testing.T) {
	_, err := NewRedisLocker(nil).Lock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockNotReady)

	var l *RedisLocker
	_, err = l.Lock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockNotReady)
}

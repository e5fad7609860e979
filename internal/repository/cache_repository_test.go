package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/sma-activity-planner/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "plans", nil)
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, "run:1", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "run:1", map[string]string{"a": "b"}, 0))
	assert.NoError(t, repo.Delete(ctx, "run:1"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
	assert.Equal(t, "plans:run:1", repo.key("run:1"))
	assert.Equal(t, "x", NewCacheRepository(nil, "", nil).key("x"))
}

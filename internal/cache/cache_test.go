package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledCache(t *testing.T) {
	ctx := context.Background()

	for name, c := range map[string]*Cache{"nil": nil, "empty addr": New("")} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.Enabled())

			_, err := c.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrMiss)

			assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))
			assert.NoError(t, c.Del(ctx, "k"))

			_, err = c.SetNX(ctx, "k", "v", time.Minute)
			assert.ErrorIs(t, err, ErrDisabled)

			_, err = c.GetDel(ctx, "k")
			assert.ErrorIs(t, err, ErrDisabled)

			assert.ErrorIs(t, c.Ping(ctx), ErrDisabled)
			assert.NoError(t, c.Close())
		})
	}
}

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("signoz-ingestion-key=abc, x-team = shop ,broken")

	assert.Equal(t, map[string]string{
		"signoz-ingestion-key": "abc",
		"x-team":               "shop",
	}, h)
	assert.Empty(t, parseHeaders(""))
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	require.NotNil(t, m.OrdersCreated)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordDBQuery(ctx, "SELECT", "orders", "SELECT 1", time.Now(), true)
		m.RecordCache(ctx, "products", true)
		m.RecordCache(ctx, "products", false)
	})
}

package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyambika/marketplace/internal/models"
)

func TestValidateOrderRequestTotals(t *testing.T) {
	items := []models.CreateOrderItem{{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(1000)}}
	cases := []struct {
		name      string
		total     decimal.Decimal
		shipping  decimal.Decimal
		wantErr   bool
		wantTotal decimal.Decimal
	}{
		{"items only", decimal.NewFromInt(2000), decimal.Zero, false, decimal.NewFromInt(2000)},
		{"items plus shipping", decimal.NewFromInt(7000), decimal.NewFromInt(5000), false, decimal.NewFromInt(7000)},
		{"missing total is computed", decimal.Zero, decimal.NewFromInt(5000), false, decimal.NewFromInt(7000)},
		{"shipping left out of total", decimal.NewFromInt(2000), decimal.NewFromInt(5000), true, decimal.Zero},
		{"total without declared shipping", decimal.NewFromInt(7000), decimal.Zero, true, decimal.Zero},
		{"negative shipping", decimal.NewFromInt(1000), decimal.NewFromInt(-1000), true, decimal.Zero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := models.CreateOrderRequest{
				Items:           items,
				Total:           tc.total,
				Shipping:        tc.shipping,
				ShippingAddress: "Kigali",
			}
			err := validateOrderRequest(&req)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.wantTotal.Equal(req.Total), "total %s", req.Total)
			assert.Equal(t, "cash_on_delivery", req.PaymentMethod)
		})
	}
}

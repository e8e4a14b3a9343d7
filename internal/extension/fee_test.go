package extension

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFeeSchedule(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		prior int
		want  string
	}{
		{0, "10"},
		{1, "15"},
		{2, "22.5"},
		{3, "33.75"},
	}
	for _, tc := range cases {
		got := FeeFor(cfg, tc.prior)
		want, _ := decimal.NewFromString(tc.want)
		assert.True(t, got.Equal(want), "extension #%d: expected %s, got %s", tc.prior+1, tc.want, got)
	}
}

func TestFeeScheduleCustomConfig(t *testing.T) {
	cfg := Config{
		BaseFee:       decimal.NewFromInt(5),
		FeeMultiplier: decimal.NewFromInt(2),
	}
	assert.True(t, FeeFor(cfg, 0).Equal(decimal.NewFromInt(5)))
	assert.True(t, FeeFor(cfg, 3).Equal(decimal.NewFromInt(40)))
}

func TestFeeForNegativePrior(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, FeeFor(cfg, -1).Equal(decimal.NewFromInt(10)))
}

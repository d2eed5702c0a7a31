package catalog_test

import (
	"testing"

	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		price    int64
		discount int
		want     int64
	}{
		{1000, 0, 1000},
		{1000, 10, 900},
		{999, 15, 849},
		{1, 50, 1},
		{2500, 100, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, catalog.FinalPrice(tt.price, tt.discount), "%d -%d%%", tt.price, tt.discount)
	}

	p := catalog.Product{PriceCents: 4000, Discount: 25}
	assert.Equal(t, int64(3000), p.FinalPriceCents())
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", catalog.FormatCents(0))
	assert.Equal(t, "8.49", catalog.FormatCents(849))
	assert.Equal(t, "120.05", catalog.FormatCents(12005))
	assert.Equal(t, "-1.50", catalog.FormatCents(-150))
}

func TestParsePrice(t *testing.T) {
	for in, want := range map[string]int64{"12": 1200, "12.5": 1250, "12,50": 1250, " 0.01 ": 1, "9.999": 1000} {
		got, err := catalog.ParsePrice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := catalog.ParsePrice("free")
	assert.ErrorIs(t, err, catalog.ErrInvalidPrice)
}

func TestProductInput_Validate(t *testing.T) {
	tests := []struct {
		name string
		in   catalog.ProductInput
		want error
	}{
		{"valid", catalog.ProductInput{Name: "Espresso", Article: "E-1", Price: "45"}, nil},
		{"missing article", catalog.ProductInput{Name: "Espresso", Price: "45"}, catalog.ErrRequiredField},
		{"negative amount", catalog.ProductInput{Name: "Espresso", Article: "E-1", Price: "45", Amount: -1}, catalog.ErrNonPositive},
		{"zero price", catalog.ProductInput{Name: "Espresso", Article: "E-1", Price: "0"}, catalog.ErrNonPositive},
		{"negative discount", catalog.ProductInput{Name: "Espresso", Article: "E-1", Price: "45", Discount: -5}, catalog.ErrNonPositive},
		{"discount over 100", catalog.ProductInput{Name: "Espresso", Article: "E-1", Price: "45", Discount: 150}, catalog.ErrDiscountTooHigh},
		{"bad price", catalog.ProductInput{Name: "Espresso", Article: "E-1", Price: "n/a"}, catalog.ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

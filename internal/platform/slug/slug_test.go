package slug_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/platform/slug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Shop", "my-shop"},
		{"  Coffee & Tea!! ", "coffee-tea"},
		{"Кава з собою", "kava-z-soboiu"},
		{"Магазин №1", "mahazyn-1"},
		{"п'ять", "piat"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, slug.Make(tt.in))
		})
	}
}

func TestSuffix(t *testing.T) {
	s, err := slug.Suffix()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{4}$`, s)
}

func TestUnique_FreeOnFirstTry(t *testing.T) {
	got, err := slug.Unique(context.Background(), "My Shop", "bot", func(context.Context, string) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "my-shop", got)
}

func TestUnique_AppendsSuffixOnCollision(t *testing.T) {
	taken := map[string]bool{"my-shop": true}
	got, err := slug.Unique(context.Background(), "My Shop", "bot", func(_ context.Context, c string) (bool, error) {
		return taken[c], nil
	})
	require.NoError(t, err)
	assert.Regexp(t, `^my-shop-[A-Z0-9]{4}$`, got)
}

func TestUnique_Fallback(t *testing.T) {
	got, err := slug.Unique(context.Background(), "???", "product", func(context.Context, string) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "product", got)
}

func TestUnique_Errors(t *testing.T) {
	boom := errors.New("boom")
	_, err := slug.Unique(context.Background(), "x", "bot", func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = slug.Unique(context.Background(), "x", "bot", func(context.Context, string) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, slug.ErrExhausted)
}

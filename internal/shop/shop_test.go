package shop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"гарячі напої", "Гарячі Напої"},
		{"ЧАЙ", "Чай"},
		{"coffee-to-go", "Coffee-To-Go"},
		{"o'neil's tea", "O'Neil'S Tea"},
		{"2nd edition", "2Nd Edition"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, titleCase(tt.in), tt.in)
	}
}

func TestCardText(t *testing.T) {
	p := &catalog.Product{
		Name:       "Latte",
		PriceCents: 6000,
		Discount:   10,
		Categories: []string{"гарячі напої", "кава"},
	}
	assert.Equal(t,
		"<b>Назва: Latte</b>\nОпис: -\nЦіна: 54.00 ₴\nКатегорії: Гарячі Напої, Кава \n",
		cardText(p, "₴"))

	p.Description = "With milk"
	p.URL = "https://example.com/latte"
	text := cardText(p, "₴")
	assert.Contains(t, text, "Опис: With milk\n")
	assert.True(t, strings.HasSuffix(text, "Посилання на товар в інтернет магазині: https://example.com/latte"))
}

func TestBasketText(t *testing.T) {
	empty := &orders.Basket{}
	assert.Equal(t, "Ваш кошик:\n-\n-------------\nСума: <i><b>0.00</b></i>\n", basketText(empty))

	b := &orders.Basket{Items: []orders.Item{
		{Name: "Espresso", Amount: 2, PriceCents: 4550},
		{Name: "Latte", Amount: 1, PriceCents: 6000, Discount: 10},
	}}
	assert.Equal(t,
		"Ваш кошик:\n"+
			"<i><u>Espresso</u></i> x 2 (45.50x2=91.00)\n"+
			"<i><u>Latte</u></i> x 1 (54.00x1=54.00)\n"+
			"-------------\nСума: <i><b>145.00</b></i>\n",
		basketText(b))
}

func TestDraftSummary(t *testing.T) {
	o := &orders.Order{
		Number:     7,
		Status:     orders.StatusDraft,
		PriceCents: 9100,
		Country:    "Україна",
		Items:      []orders.Item{{Name: "Espresso", Amount: 2}},
		CreatedAt:  time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
	}
	text := draftSummary(o, "barista")
	assert.True(t, strings.HasPrefix(text, "Інформація, щодо вашого замовлення: \n<b>ID</b>: 7\n"))
	assert.Contains(t, text, "<b>Товари</b>: Espresso x 2\n\n\nЯкщо бажаєте")
	assert.Contains(t, text, "зв'яжіться з оператором магазину: @barista\n")
	assert.True(t, strings.HasSuffix(text, "☝"))
}

func TestOrdersText(t *testing.T) {
	list := []orders.Order{
		{Number: 1, Status: orders.StatusNew},
		{Number: 2, Status: orders.StatusCanceled},
		{Number: 3, Status: orders.StatusDone},
	}
	text := ordersText(list)
	assert.True(t, strings.HasPrefix(text,
		"<b>Загальна кількість замолвень: 3\nКількість активних: 1\nКількість закритих: 1\nКількість опрацьованних: 1\n</b>\n<b>ID</b>: 1\n"))
	assert.Equal(t, 3, strings.Count(text, "<b>Статус</b>"))
}

func TestDeduper_FirstSeen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	d := NewDeduper(rdb, 10*time.Minute)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "bot-1", 100)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.FirstSeen(ctx, "bot-1", 100)
	require.NoError(t, err)
	assert.False(t, first, "redelivery")

	first, err = d.FirstSeen(ctx, "bot-2", 100)
	require.NoError(t, err)
	assert.True(t, first, "update ids are per bot")

	assert.Equal(t, 10*time.Minute, mr.TTL(dedupePrefix+"bot-1:100"))
	mr.FastForward(11 * time.Minute)
	first, err = d.FirstSeen(ctx, "bot-1", 100)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestDeduper_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewDeduper(rdb, time.Minute).FirstSeen(context.Background(), "bot-1", 1)
	assert.Error(t, err)
}

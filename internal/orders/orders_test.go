package orders_test

import (
	"testing"
	"time"

	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/stretchr/testify/assert"
)

func TestStatus_Display(t *testing.T) {
	assert.Equal(t, "Новий", orders.StatusNew.Display())
	assert.Equal(t, "Відміна", orders.StatusCanceled.Display())
	assert.Equal(t, "Прийнятий", orders.StatusAccepted.Display())
	assert.Equal(t, "Закритий", orders.StatusDone.Display())
	assert.Equal(t, "weird", orders.Status("weird").Display())
}

func TestBasket_PriceCents(t *testing.T) {
	b := orders.Basket{Items: []orders.Item{
		{Name: "Espresso", Amount: 2, PriceCents: 4550},
		{Name: "Latte", Amount: 3, PriceCents: 6000, Discount: 10},
	}}
	// 45.50*2 + 54.00*3
	assert.EqualValues(t, 9100+16200, b.PriceCents())
	assert.Zero(t, (&orders.Basket{}).PriceCents())
}

func TestSummarize(t *testing.T) {
	list := []orders.Order{
		{Status: orders.StatusDraft},
		{Status: orders.StatusNew},
		{Status: orders.StatusNew},
		{Status: orders.StatusCanceled},
		{Status: orders.StatusAccepted},
		{Status: orders.StatusDone},
	}
	assert.Equal(t, orders.Summary{Total: 5, New: 2, Canceled: 1, Processed: 2}, orders.Summarize(list))
}

func sampleOrder() *orders.Order {
	return &orders.Order{
		Number:     17,
		Status:     orders.StatusAccepted,
		PriceCents: 12050,
		CreatedAt:  time.Date(2026, 3, 4, 15, 6, 7, 0, time.UTC),
		Country:    "Україна",
		Items: []orders.Item{
			{Name: "Espresso", Amount: 2},
			{Name: "Latte", Amount: 1},
		},
	}
}

func TestStatusNotification(t *testing.T) {
	o := sampleOrder()
	o.ShopComment = "Відправимо завтра"

	text := orders.StatusNotification(o, "barista")
	assert.Equal(t, "Статус вашого замовлення був змінений на Прийнятий.\n"+
		"<b>Коментар магазину</b>: Відправимо завтра\n\n"+
		"<b>ID</b>: 17\n"+
		"<b>Статус</b>: Прийнятий\n"+
		"<b>Ціна</b>: 120.50\n"+
		"<b>Дата створення</b>: 03/04/2026, 15:06:07\n"+
		"<b>Ваш коментар</b>: -\n"+
		"<b>Товари</b>: Espresso x 2, Latte x 1\n\n"+
		"Для отримання більш детальної інформації зв'яжіться з оператором магазину: @barista\n", text)
}

func TestDetails(t *testing.T) {
	text := orders.Details(sampleOrder())
	assert.Contains(t, text, "<b>Створено</b>: 03/04/2026, 15:06:07\n")
	assert.Contains(t, text, "<b>Країна доставки</b>: Україна\n")
	assert.Contains(t, text, "<b>Тип доставки</b>: -\n")
	assert.Contains(t, text, "<b>Коментар магазину</b>: -\n")
}

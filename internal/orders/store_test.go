package orders_test

import (
	"context"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/catalog"
	"github.com/shopfront-hq/shopfront/internal/orders"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/database/dbtest"
	"github.com/shopfront-hq/shopfront/internal/reference"
	"github.com/shopfront-hq/shopfront/internal/subscribers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*database.Pool, func()) {
	t.Helper()
	return dbtest.Start(t)
}

type shop struct {
	tenantID   string
	bot        *bots.Bot
	subscriber *subscribers.Subscriber
	espresso   *catalog.Product
	latte      *catalog.Product
	country    *reference.Country
}

// seedShop creates a tenant, a bot with one country, two products and a
// subscriber.
func seedShop(t *testing.T, pool *database.Pool) shop {
	t.Helper()
	ctx := context.Background()
	var s shop
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ('Kyiv Coffee', 'kyiv-coffee') RETURNING id`).Scan(&s.tenantID))

	require.NoError(t, database.WithTenantTx(ctx, pool, s.tenantID, func(ctx context.Context, q database.Querier) error {
		var err error
		s.country, err = reference.NewStore().CreateCountry(ctx, q, reference.Country{Name: "Україна", ISO2: "UA"})
		require.NoError(t, err)

		s.bot, err = bots.NewStore().Create(ctx, q, bots.Input{
			Name: "Coffee", Token: "1:a", TelegramOperator: "barista", TermsOfAgreement: true,
			CountryIDs: []string{s.country.ID},
		}, "")
		require.NoError(t, err)

		products := catalog.NewStore()
		s.espresso, err = products.CreateProduct(ctx, q, s.bot.ID, catalog.ProductInput{
			Name: "Espresso", Article: "E-1", Price: "45.50", Amount: 5,
		})
		require.NoError(t, err)
		s.latte, err = products.CreateProduct(ctx, q, s.bot.ID, catalog.ProductInput{
			Name: "Latte", Article: "L-1", Price: "60", Amount: 2, Discount: 10,
		})
		require.NoError(t, err)

		s.subscriber, err = subscribers.NewStore().Upsert(ctx, q, s.bot.ID, s.bot.TelegramOperator,
			subscribers.Profile{ChatID: 100, Name: "Olena", Username: "olena"})
		require.NoError(t, err)
		return nil
	}))
	return s
}

func TestStore_BasketRules(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := seedShop(t, pool)
	store := orders.NewStore()
	ctx := context.Background()

	require.NoError(t, database.WithTenantConnection(ctx, pool, s.tenantID, func(ctx context.Context, q database.Querier) error {
		_, err := store.ActiveBasket(ctx, q, s.subscriber.ID)
		assert.ErrorIs(t, err, orders.ErrBasketNotFound)

		_, err = store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.latte.ID, 0)
		assert.ErrorIs(t, err, orders.ErrInvalidAmount)
		_, err = store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.latte.ID, 3)
		assert.ErrorIs(t, err, orders.ErrInvalidAmount)
		_, err = store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, "missing", 1)
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)

		basket, err := store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.latte.ID, 1)
		require.NoError(t, err)
		basket, err = store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.latte.ID, 1)
		require.NoError(t, err)
		require.Len(t, basket.Items, 1)
		assert.Equal(t, 2, basket.Items[0].Amount)

		_, err = store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.latte.ID, 1)
		assert.ErrorIs(t, err, orders.ErrInvalidAmount, "basket total may not exceed the stock")

		basket, err = store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.espresso.ID, 2)
		require.NoError(t, err)
		require.Len(t, basket.Items, 2)
		assert.Equal(t, "Espresso", basket.Items[0].Name)
		assert.EqualValues(t, 9100+10800, basket.PriceCents())

		same, err := store.OpenBasket(ctx, q, s.subscriber.ID)
		require.NoError(t, err)
		assert.Equal(t, basket.ID, same.ID)

		cleared, err := store.ClearBasket(ctx, q, s.subscriber.ID)
		require.NoError(t, err)
		assert.Empty(t, cleared.Items)

		_, err = store.CreateDraft(ctx, q, s.bot.ID, s.subscriber.ID)
		assert.ErrorIs(t, err, orders.ErrEmptyBasket)
		return nil
	}))
}

func TestStore_OrderFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := seedShop(t, pool)
	store := orders.NewStore()
	ctx := context.Background()

	require.NoError(t, database.WithTenantConnection(ctx, pool, s.tenantID, func(ctx context.Context, q database.Querier) error {
		_, err := store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.espresso.ID, 2)
		require.NoError(t, err)

		draft, err := store.CreateDraft(ctx, q, s.bot.ID, s.subscriber.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusDraft, draft.Status)
		assert.EqualValues(t, 9100, draft.PriceCents)
		assert.EqualValues(t, 100, draft.ChatID)
		assert.Equal(t, "Espresso x 2", draft.Products())

		_, err = store.ActiveBasket(ctx, q, s.subscriber.ID)
		assert.ErrorIs(t, err, orders.ErrBasketNotFound, "the basket is archived with the order")

		draft, err = store.SetCountry(ctx, q, s.subscriber.ID, draft.ID, s.country.ID)
		require.NoError(t, err)
		assert.Equal(t, "Україна", draft.Country)

		draft, err = store.SetCustomerComment(ctx, q, s.subscriber.ID, draft.Number, "після 18:00")
		require.NoError(t, err)
		assert.Equal(t, "після 18:00", draft.CustomerComment)

		_, err = store.SetCustomerComment(ctx, q, s.subscriber.ID, draft.Number+1000, "x")
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)

		list, err := store.ListForSubscriber(ctx, q, s.subscriber.ID)
		require.NoError(t, err)
		assert.Empty(t, list, "drafts are hidden")

		submitted, err := store.Submit(ctx, q, s.subscriber.ID, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusNew, submitted.Status)

		_, err = store.Submit(ctx, q, s.subscriber.ID, draft.ID)
		assert.ErrorIs(t, err, orders.ErrNotDraft)
		_, err = store.SetCustomerComment(ctx, q, s.subscriber.ID, draft.Number, "late")
		assert.ErrorIs(t, err, orders.ErrNotDraft)
		assert.ErrorIs(t, store.DeleteDraft(ctx, q, s.subscriber.ID, draft.ID), orders.ErrNotDraft)

		accepted, err := store.Accept(ctx, q, s.bot.ID, draft.ID, "Відправимо завтра")
		require.NoError(t, err)
		assert.Equal(t, orders.StatusAccepted, accepted.Status)
		assert.Equal(t, "Відправимо завтра", accepted.ShopComment)
		assert.NotNil(t, accepted.ClosedAt)

		p, err := catalog.NewStore().GetProduct(ctx, q, s.bot.ID, s.espresso.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, p.AcquiredCount)

		_, err = store.Accept(ctx, q, s.bot.ID, draft.ID, "")
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)

		done, err := store.Complete(ctx, q, s.bot.ID, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusDone, done.Status)
		assert.Equal(t, "Відправимо завтра", done.ShopComment, "an empty comment keeps the old one")

		all, err := store.List(ctx, q, s.bot.ID, "")
		require.NoError(t, err)
		require.Len(t, all, 1)
		none, err := store.List(ctx, q, s.bot.ID, orders.StatusNew)
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}

func TestStore_SubscriberCancelAndDeleteDraft(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := seedShop(t, pool)
	store := orders.NewStore()
	ctx := context.Background()

	require.NoError(t, database.WithTenantConnection(ctx, pool, s.tenantID, func(ctx context.Context, q database.Querier) error {
		basket, err := store.AddToBasket(ctx, q, s.bot.ID, s.subscriber.ID, s.latte.ID, 1)
		require.NoError(t, err)
		draft, err := store.CreateDraft(ctx, q, s.bot.ID, s.subscriber.ID)
		require.NoError(t, err)

		require.NoError(t, store.DeleteDraft(ctx, q, s.subscriber.ID, draft.ID))
		restored, err := store.ActiveBasket(ctx, q, s.subscriber.ID)
		require.NoError(t, err)
		assert.Equal(t, basket.ID, restored.ID)
		require.Len(t, restored.Items, 1)

		_, err = store.GetForSubscriber(ctx, q, s.subscriber.ID, draft.ID)
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)

		draft, err = store.CreateDraft(ctx, q, s.bot.ID, s.subscriber.ID)
		require.NoError(t, err)
		_, err = store.CancelBySubscriber(ctx, q, s.subscriber.ID, draft.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition, "drafts are deleted, not canceled")

		_, err = store.Submit(ctx, q, s.subscriber.ID, draft.ID)
		require.NoError(t, err)

		other, err := subscribers.NewStore().Upsert(ctx, q, s.bot.ID, s.bot.TelegramOperator,
			subscribers.Profile{ChatID: 200, Name: "Ivan", Username: "ivan"})
		require.NoError(t, err)
		_, err = store.CancelBySubscriber(ctx, q, other.ID, draft.ID)
		assert.ErrorIs(t, err, orders.ErrOrderNotFound, "orders of other subscribers are invisible")

		canceled, err := store.CancelBySubscriber(ctx, q, s.subscriber.ID, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusCanceled, canceled.Status)

		list, err := store.ListForSubscriber(ctx, q, s.subscriber.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.Summary{Total: 1, Canceled: 1}, orders.Summarize(list))
		return nil
	}))
}

package subscribers_test

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopfront-hq/shopfront/internal/subscribers"
	"github.com/stretchr/testify/assert"
)

func TestProfileFromUser(t *testing.T) {
	p := subscribers.ProfileFromUser(&tgbotapi.User{ID: 42, FirstName: "Olena", LastName: "Koval", UserName: "okoval"})
	assert.Equal(t, int64(42), p.ChatID)
	assert.Equal(t, "Olena Koval", p.Name)
	assert.Equal(t, "okoval", p.Username)

	p = subscribers.ProfileFromUser(&tgbotapi.User{ID: 7, FirstName: "Taras"})
	assert.Equal(t, "Taras", p.Name)
	assert.Equal(t, "Taras", p.Username)
}

func TestProfile_IsOperator(t *testing.T) {
	p := subscribers.Profile{Username: "Barista"}
	assert.True(t, p.IsOperator("barista"))
	assert.True(t, p.IsOperator("@barista"))
	assert.False(t, p.IsOperator(""))
	assert.False(t, p.IsOperator("cashier"))
}

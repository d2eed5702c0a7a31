package keyboards

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Action is a main menu entry chosen from the reply keyboard.
type Action int

const (
	ActionNone Action = iota
	ActionHome
	ActionCatalog
	ActionCategories
	ActionHelp
	ActionBasket
	ActionOrders
)

const (
	LabelHome       = "Головна 🏠"
	LabelCatalog    = "Каталог 📂"
	LabelCategories = "Категорії 🗃"
	LabelHelp       = "Допомога 🤷"
	LabelBasket     = "Кошик 👀"
	LabelOrders     = "Замовлення 📦"
)

var actionsByWord = map[string]Action{
	"Головна":    ActionHome,
	"Каталог":    ActionCatalog,
	"Категорії":  ActionCategories,
	"Допомога":   ActionHelp,
	"Кошик":      ActionBasket,
	"Замовлення": ActionOrders,
}

// ActionForText maps the first word of a message to a menu action.
func ActionForText(text string) Action {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	return actionsByWord[word]
}

// MainMenu is the reply keyboard sent with the welcome message.
func MainMenu() tgbotapi.ReplyKeyboardMarkup {
	markup := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(LabelHome),
			tgbotapi.NewKeyboardButton(LabelCatalog),
			tgbotapi.NewKeyboardButton(LabelCategories),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(LabelHelp),
			tgbotapi.NewKeyboardButton(LabelBasket),
			tgbotapi.NewKeyboardButton(LabelOrders),
		),
	)
	markup.ResizeKeyboard = true
	markup.Selective = true
	return markup
}

// Package shop runs the subscriber-facing side of every bot: it receives
// Telegram webhook updates and drives the catalog, basket and order
// conversations through inline keyboards.
package shop

import (
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of the Telegram client the shop talks to.
type BotAPI interface {
	SendMessage(token string, chatID int64, text string, markup any) (tgbotapi.Message, error)
	EditMessage(token string, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditReplyMarkup(token string, chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error
	SendPhoto(token string, chatID int64, photoURL, caption string) (tgbotapi.Message, error)
	EditPhoto(token string, chatID int64, messageID int, photoURL, caption string) (tgbotapi.Message, error)
	AnswerCallback(token, callbackID, text string, showAlert bool) error
}

// Subscriber-facing texts.
const (
	textWelcome         = "Вас вітає магазин %s"
	textHelp            = "Якщо ви маєте питання щодо роботи магазина ви маєте змогу з'эднатися з модератором чату @%s."
	textError           = "Щось пішло не так!("
	textAnswerError     = "Щось пішло не так!"
	textCategories      = "Категорії товарів"
	textAllViewed       = "Усі товари були переглянуті"
	textShown           = "Відображено %d з %d"
	textNoBasket        = "У вас немає активних кошиків"
	textEmptyBasket     = "Ваш кошик порожній"
	textTooMany         = "Вибрана кількість товари переищує кількість товару у магазині!"
	textAddedToBasket   = "Товар додано до кошика!"
	textChooseCountry   = "Оберіть країну для доставки"
	textChooseDelivery  = "Оберіть спосіб доставки"
	textChoosePayment   = "Оберіть спосіб оплати"
	textOrderSubmitted  = "Замовлення створене. Зайчекайте на повідомлення від адміністратора, щодо підтвердження вашого замовлення.\nВідстежити зміни можна у вкладинці ваших замовлень."
	textOrderDeleted    = "Замовлення видалене."
	textNotCancelable   = "Це замовлення вже не можна відмінити"
	textNotEditable     = "Це замовлення неможливо редагувати."
	textCommentSaved    = "Ваш коментар успішно збережений!"
	textDraftHeader     = "Інформація, щодо вашого замовлення: \n"
	textDraftCommentTip = "\n\nЯкщо бажаєте додати додаткову інформацію, щодо доставки вашого замовлення, то напишіть коментар у наступному форматі, де [order_id] - id вашого амовлення:\n" +
		"/comment [order_id] Тут ваш коментар...\n" +
		"Aбо зв'яжіться з оператором магазину: @%s\n" +
		"<b>Важливо:</b> пишіть коментар перед тип як підтвердити або відхилити замовлення. Після того, як ваш коментар буде прийнятий,\n" +
		"підтвердіть замовлення у повідомленні вище. ☝"
)

const commandComment = "/comment"

// titleCase upper-cases the first letter of every word and lower-cases the
// rest. A word is a run of letters.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inWord := false
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r):
			inWord = false
			b.WriteRune(r)
		case inWord:
			b.WriteRune(unicode.ToLower(r))
		default:
			inWord = true
			b.WriteRune(unicode.ToTitle(r))
		}
	}
	return b.String()
}

func emptyMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}

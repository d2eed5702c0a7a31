// Package keyboards builds the inline and reply keyboards of the shop and
// keeps the payload behind every inline button in Redis.
package keyboards

// CallbackType names what an inline button does when pressed.
type CallbackType string

const (
	TypeNext           CallbackType = "next"
	TypePrev           CallbackType = "prev"
	TypeCategory       CallbackType = "category"
	TypeLike           CallbackType = "like"
	TypeOrder          CallbackType = "order"
	TypeIncr           CallbackType = "incr"
	TypeDecr           CallbackType = "decr"
	TypeAddCart        CallbackType = "add_cart"
	TypeClearCart      CallbackType = "clear_cart"
	TypeCreateOrder    CallbackType = "create_order"
	TypeChooseCountry  CallbackType = "choose_country"
	TypeChooseDelivery CallbackType = "choose_delivery"
	TypeChoosePayment  CallbackType = "choose_payment"
	TypeEditOrder      CallbackType = "edit_order"
	TypeSubmitOrder    CallbackType = "submit_order"
	TypeCancelledOrder CallbackType = "cancelled_order"
	TypeAmount         CallbackType = "amount"
	TypeSeen           CallbackType = "seen"
)

// Callback is the payload stored behind an inline button. Only the fields
// relevant to Type are set.
type Callback struct {
	Type          CallbackType `json:"type"`
	ID            string       `json:"id,omitempty"`
	MessageToEdit int          `json:"message_to_edit,omitempty"`
	StartFrom     int          `json:"start_from"`
	CategoryID    string       `json:"category_id,omitempty"`
	Amount        int          `json:"amount,omitempty"`
	Products      bool         `json:"products,omitempty"`
	CountryID     string       `json:"country_id,omitempty"`
	DeliveryID    string       `json:"delivery_id,omitempty"`
	PaymentID     string       `json:"payment_id,omitempty"`
}

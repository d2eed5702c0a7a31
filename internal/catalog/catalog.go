// Package catalog holds the categories and products of each bot, their
// photos and counters, and the spreadsheet import.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrPhotoNotFound     = errors.New("photo not found")
	ErrCategoryExists    = errors.New("category with this name already exists")
	ErrRequiredField     = errors.New("name and article are required")
	ErrNonPositive       = errors.New("amount, price and discount must not be negative and price must be at least 0.01")
	ErrDiscountTooHigh   = errors.New("discount must be at most 100 percent")
	ErrInvalidPrice      = errors.New("price must be a number")
	ErrUnknownCategory   = errors.New("category does not exist for this bot")
	ErrUnsupportedFormat = errors.New("only .xls and .xlsx files are allowed")
	ErrBadLayout         = errors.New("the file does not match the import layout")
)

// NoImageURL is shown for products without a photo.
const NoImageURL = "https://www.freeiconspng.com/thumbs/no-image-icon/no-image-icon-6.png"

type Category struct {
	ID          string    `json:"id"`
	BotID       string    `json:"bot_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product prices are stored in cents.
type Product struct {
	ID               string    `json:"id"`
	BotID            string    `json:"bot_id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Description      string    `json:"description"`
	Amount           int       `json:"amount"`
	Article          string    `json:"article"`
	PriceCents       int64     `json:"price_cents"`
	Discount         int       `json:"discount"`
	Visible          bool      `json:"visible"`
	URL              string    `json:"url"`
	Likes            int       `json:"likes"`
	ViewsCount       int       `json:"views_count"`
	AddToBasketCount int       `json:"add_to_basket_count"`
	AcquiredCount    int       `json:"acquired_count"`
	CategoryIDs      []string  `json:"category_ids"`
	Categories       []string  `json:"categories"`
	MainPhotoURL     string    `json:"main_photo_url"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FinalPriceCents is the price less the discount percent, rounded half up
// to the cent.
func (p *Product) FinalPriceCents() int64 {
	return FinalPrice(p.PriceCents, p.Discount)
}

func FinalPrice(priceCents int64, discount int) int64 {
	if discount <= 0 {
		return priceCents
	}
	return (priceCents*int64(100-discount) + 50) / 100
}

// FormatCents renders cents as "12.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParsePrice converts "12.5" or "12,50" to cents.
func ParsePrice(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	return int64(math.Round(f * 100)), nil
}

type Photo struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	ImageURL  string    `json:"image_url"`
	IsMain    bool      `json:"is_main"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Amount      int      `json:"amount"`
	Article     string   `json:"article"`
	Price       string   `json:"price"`
	Discount    int      `json:"discount"`
	Visible     *bool    `json:"visible"`
	URL         string   `json:"url"`
	CategoryIDs []string `json:"category_ids"`
}

// Validate checks the input and returns the price in cents.
func (in *ProductInput) Validate() (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Article = strings.TrimSpace(in.Article)
	if in.Name == "" || in.Article == "" {
		return 0, ErrRequiredField
	}
	cents, err := ParsePrice(in.Price)
	if err != nil {
		return 0, err
	}
	if in.Amount < 0 || cents < 1 || in.Discount < 0 {
		return 0, ErrNonPositive
	}
	if in.Discount > 100 {
		return 0, ErrDiscountTooHigh
	}
	return cents, nil
}

func (in *ProductInput) visible() bool {
	return in.Visible == nil || *in.Visible
}

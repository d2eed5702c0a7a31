// Package reference holds the shared administration data bots choose from:
// countries, delivery types, payment types and currencies.
package reference

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrNotFound     = errors.New("reference record not found")
	ErrDuplicate    = errors.New("reference record already exists")
	ErrInvalidInput = errors.New("invalid reference record")
)

type Country struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ISO2 string `json:"iso2"`
	Slug string `json:"slug"`
}

type DeliveryType struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	CountryID *string `json:"country_id,omitempty"`
	IsActive  bool    `json:"is_active"`
}

type PaymentType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Currency struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	CountryID *string `json:"country_id,omitempty"`
}

var iso2Pattern = regexp.MustCompile(`^[A-Z]{2}$`)

func (c *Country) Validate() error {
	c.ISO2 = strings.ToUpper(strings.TrimSpace(c.ISO2))
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !iso2Pattern.MatchString(c.ISO2) {
		return fmt.Errorf("%w: iso2 must be two letters", ErrInvalidInput)
	}
	if c.Slug == "" {
		c.Slug = strings.ToLower(c.ISO2)
	}
	return nil
}

func (d *DeliveryType) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return nil
}

func (p *PaymentType) Validate() error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Slug) == "" {
		return fmt.Errorf("%w: name and slug are required", ErrInvalidInput)
	}
	return nil
}

// Validate requires a single-character symbol such as "₴".
func (c *Currency) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(c.Symbol) != 1 {
		return fmt.Errorf("%w: symbol must be exactly one character", ErrInvalidInput)
	}
	return nil
}

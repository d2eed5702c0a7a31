// Package slug builds URL-safe identifiers for bots and products.
package slug

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"unicode"
)

// ErrExhausted is returned when no free slug was found within the attempt limit.
var ErrExhausted = errors.New("no free slug found")

const (
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength   = 4
	maxAttempts    = 20
)

var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "h", 'ґ': "g", 'д': "d", 'е': "e", 'є': "ie",
	'ж': "zh", 'з': "z", 'и': "y", 'і': "i", 'ї': "i", 'й': "i", 'к': "k", 'л': "l",
	'м': "m", 'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch", 'ь': "", 'ю': "iu",
	'я': "ia", 'ё': "e", 'ы': "y", 'э': "e", 'ъ': "",
}

// Make lowercases s, transliterates Cyrillic and joins the remaining
// ASCII letters and digits with single hyphens.
func Make(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		var part string
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			part = string(r)
		case translit[r] != "":
			part = translit[r]
		case r == '\'' || r == '’' || r == 'ь' || r == 'ъ':
			continue
		default:
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteString(part)
	}
	return b.String()
}

// Suffix returns 4 random uppercase letters or digits.
func Suffix() (string, error) {
	buf := make([]byte, suffixLength)
	limit := big.NewInt(int64(len(suffixAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = suffixAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Unique returns Make(name), appending "-XXXX" suffixes until exists reports
// the candidate as free. fallback is used when name has no usable characters.
func Unique(ctx context.Context, name, fallback string, exists func(ctx context.Context, candidate string) (bool, error)) (string, error) {
	base := Make(name)
	if base == "" {
		base = fallback
	}

	candidate := base
	for range maxAttempts {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix, err := Suffix()
		if err != nil {
			return "", err
		}
		candidate = base + "-" + suffix
	}
	return "", ErrExhausted
}

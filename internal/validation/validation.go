// Package validation содержит функции нормализации и валидации входных данных.
package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// DigitsOnly оставляет в строке только цифры.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if unicode.IsDigit(ch) && ch <= unicode.MaxASCII {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// NormalizeSlug приводит идентификатор сайта к нижнему регистру без пробелов по краям.
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidSlug проверяет формат идентификатора сайта.
func IsValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// New создаёт валидатор с тегами slug и date.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return IsValidSlug(fl.Field().String())
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	})
	return v
}

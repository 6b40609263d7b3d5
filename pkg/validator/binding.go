package validator

import (
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// seatNumberRegex accepts row-letter plus number labels such as A1, B12, 12 or 3C
var seatNumberRegex = regexp.MustCompile(`^[A-Z]{0,2}[0-9]{1,3}[A-Z]?$`)

// IsSeatNumber reports whether s is a well-formed seat label
func IsSeatNumber(s string) bool {
	return seatNumberRegex.MatchString(s)
}

// RegisterGinValidations adds the seat_number and contact_phone tags to gin's validator
func RegisterGinValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
	}
	return Register(v)
}

// Register adds the custom tags to v
func Register(v *validator.Validate) error {
	phones := NewPhoneValidator()

	if err := v.RegisterValidation("seat_number", func(fl validator.FieldLevel) bool {
		return IsSeatNumber(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register seat_number: %w", err)
	}

	if err := v.RegisterValidation("contact_phone", func(fl validator.FieldLevel) bool {
		return phones.IsValid(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register contact_phone: %w", err)
	}
	return nil
}

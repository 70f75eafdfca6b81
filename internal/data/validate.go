package data

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func InitValidator() {
	validate = validator.New()
	if err := validate.RegisterValidation("snowflake", validateSnowflake); err != nil {
		panic(fmt.Sprintf("Failed to register validation: %v", err))
	}
}

func GetValidator() *validator.Validate {
	if validate == nil {
		InitValidator()
	}
	return validate
}

// IsSnowflake reports whether s looks like a Discord ID.
func IsSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validateSnowflake(fl validator.FieldLevel) bool {
	return IsSnowflake(fl.Field().String())
}

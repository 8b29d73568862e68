package api

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the "direction" and "symbol" tags to gin's validator.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("api: gin validator is not go-playground/validator")
			return
		}
		if err := v.RegisterValidation("direction", validDirection); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("symbol", validSymbol)
	})
	return registerErr
}

func validDirection(fl validator.FieldLevel) bool {
	_, ok := model.ParseDirection(fl.Field().String())
	return ok
}

// validSymbol accepts 3 to 12 letters or digits once separators are stripped.
func validSymbol(fl validator.FieldLevel) bool {
	return isSymbol(fl.Field().String())
}

func isSymbol(s string) bool {
	s = quote.NormalizeSymbol(s)
	if len(s) < 3 || len(s) > 12 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

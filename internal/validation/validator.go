package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

// New returns a configured validator with the custom money rule and the
// checkout struct-level checks registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// amounts validate as their minor-unit count, so gt=0 means at least 0.01
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		if a, ok := f.Interface().(money.Amount); ok {
			return a.Minor()
		}
		return nil
	}, money.Amount{})
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

// checkoutStructValidation rejects notes made only of whitespace.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	if req.CustomerNote != "" && strings.TrimSpace(req.CustomerNote) == "" {
		sl.ReportError(req.CustomerNote, "customer_note", "CustomerNote", "not_blank", "")
	}
}

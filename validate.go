package daybook

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/transaction"
)

// newValidator returns a validator that reports json field names and knows
// the ledger's closed enums.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return access.Role(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("txn_type", func(fl validator.FieldLevel) bool {
		return transaction.Type(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("payment_mode", func(fl validator.FieldLevel) bool {
		return transaction.PaymentMode(fl.Field().String()).IsValid()
	})
	return v
}

// check validates in and maps field failures onto ValidationError. Several
// failures come back as a MultiError.
func (e *Engine) check(in any) error {
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}

	var multi MultiError
	for _, fe := range fields {
		multi.Add(&ValidationError{Field: fieldName(fe), Message: tagMessage(fe)})
	}
	if len(multi.Errors) == 1 {
		return multi.First()
	}
	return multi
}

// fieldName drops the top-level struct name from the namespace, so a
// nested actor role reads "actor.role".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "role", "txn_type", "payment_mode":
		return fmt.Sprintf("unknown value %q", fe.Value())
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

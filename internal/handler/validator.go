package handler

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// requestValidator validates request bodies against their `validate` tags.
// The engine is built on first use.
type requestValidator struct {
	once     sync.Once
	validate *validator.Validate
}

func (v *requestValidator) Struct(obj interface{}) error {
	v.lazyinit()
	return v.validate.Struct(obj)
}

func (v *requestValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names instead of Go field names.
		v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// fieldErrors flattens validation errors into field -> failed rule.
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

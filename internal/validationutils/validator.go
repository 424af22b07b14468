package validationutils

import (
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"reflect"
	"strings"
	"sync"
)

var TagNameFunction = func(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	if name == "" {
		name = strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	}
	if name == "-" {
		return ""
	}
	return name
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator, error namespaces use the yaml names of the fields.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(TagNameFunction)
	})
	return validate
}

// FatalConfigurationError is returned when a component is built with a configuration it cannot run with.
// It is never recovered: the component does not start.
type FatalConfigurationError struct {
	Component string
	Err       error
}

func (e *FatalConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Component, e.Err)
}

func (e *FatalConfigurationError) Unwrap() error {
	return e.Err
}

func NewFatalConfigurationError(component string, err error) error {
	return &FatalConfigurationError{Component: component, Err: err}
}

// ValidateStruct runs the struct tags validation and wraps any failure into a FatalConfigurationError.
func ValidateStruct(component string, s interface{}) error {
	if s == nil || (reflect.ValueOf(s).Kind() == reflect.Ptr && reflect.ValueOf(s).IsNil()) {
		return NewFatalConfigurationError(component, errors.New("configuration is missing"))
	}
	if err := Validator().Struct(s); err != nil {
		return NewFatalConfigurationError(component, err)
	}
	return nil
}

func IsFatalConfigurationError(err error) bool {
	var fatal *FatalConfigurationError
	return errors.As(err, &fatal)
}

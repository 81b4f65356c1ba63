// Package validation содержит проверку входных данных запросов.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError описывает нарушение правила для одного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error — результат неуспешной проверки, содержит все нарушенные правила.
type Error struct {
	Fields []FieldError
}

// New создаёт ошибку проверки из готовых сообщений.
func New(messages ...string) *Error {
	e := &Error{}
	for _, m := range messages {
		e.Fields = append(e.Fields, FieldError{Message: m})
	}
	return e
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Struct проверяет структуру по тегам validate и возвращает *Error со всеми нарушениями.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	res := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		field := fieldPath(fe)
		res.Fields = append(res.Fields, FieldError{Field: field, Message: message(field, fe)})
	}
	return res
}

// fieldPath возвращает путь поля без имени корневой структуры, например deliveryPersonnel.email.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "uuid", "uuid4":
		return field + " must be a valid id"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// Package validation содержит функции валидации входных данных.
// Функции не имеют побочных эффектов и возвращают все найденные нарушения сразу.
// Правила полей описаны тегами go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Коды нарушений.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodeInvalidEnum   = "invalid_enum"
	CodeOutOfRange    = "out_of_range"
)

// Violation описывает нарушение правила для одного поля.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// Error объединяет все нарушения, найденные при проверке запроса.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewError возвращает *Error, если список нарушений не пуст, иначе nil.
func NewError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return &Error{Violations: violations}
}

// AsError извлекает *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func violation(field, code, format string, args ...any) Violation {
	return Violation{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// В путях нарушений используются имена полей из JSON.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Суммы сравниваются как числа: gt, gte и lte работают с decimal.Decimal.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if d, ok := f.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "cyrillic_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "email_tld", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "ru_phone", func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	})
	mustRegister(v, "calendar_date", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// checkVar проверяет одно значение по тегу и возвращает не более одного нарушения.
func checkVar(field string, value any, tag string) []Violation {
	return collect(validate.Var(value, tag), func(validator.FieldError) string { return field })
}

// checkStruct проверяет структуру правил. Путь поля берётся из пространства имён без имени корневого типа.
func checkStruct(rules any) []Violation {
	return collect(validate.Struct(rules), func(fe validator.FieldError) string {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		return path
	})
}

func collect(err error, fieldOf func(validator.FieldError) string) []Violation {
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		panic(fmt.Sprintf("validation rules misconfigured: %v", err))
	}
	vs := make([]Violation, 0, len(fes))
	for _, fe := range fes {
		vs = append(vs, fromFieldError(fieldOf(fe), fe))
	}
	return vs
}

// fromFieldError переводит сработавший тег в код нарушения.
func fromFieldError(field string, fe validator.FieldError) Violation {
	isText := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return violation(field, CodeRequired, "must not be empty")
	case "cyrillic_name":
		return violation(field, CodeInvalidFormat, "must contain only Cyrillic letters and hyphens")
	case "email", "email_tld":
		return violation(field, CodeInvalidFormat, "must be a valid email address")
	case "ru_phone":
		return violation(field, CodeInvalidFormat, "must be in the format +7XXXXXXXXXX")
	case "calendar_date":
		return violation(field, CodeInvalidFormat, "%s", ErrInvalidDate.Error())
	case "oneof":
		return violation(field, CodeInvalidEnum, "must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if isText {
			return violation(field, CodeTooShort, "must be at least %s characters", fe.Param())
		}
		return violation(field, CodeOutOfRange, "must be at least %s", fe.Param())
	case "max":
		if isText {
			return violation(field, CodeTooLong, "must be at most %s characters", fe.Param())
		}
		return violation(field, CodeOutOfRange, "must not exceed %s", fe.Param())
	case "gt":
		return violation(field, CodeOutOfRange, "must be greater than %s", fe.Param())
	case "gte":
		return violation(field, CodeOutOfRange, "must not be less than %s", fe.Param())
	case "lt", "lte":
		return violation(field, CodeOutOfRange, "must not exceed %s", fe.Param())
	default:
		return violation(field, CodeInvalidFormat, "failed %s check", fe.Tag())
	}
}

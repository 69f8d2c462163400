package handler

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/nonna/internal/model"
)

var checker *validator.Validate

func init() {
	checker = validator.New(validator.WithRequiredStructEnabled())

	// report fields by their JSON names
	checker.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	for tag, fn := range customValidations() {
		if err := checker.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %q validation: %v", tag, err))
		}
	}
}

func customValidations() map[string]validator.Func {
	return map[string]validator.Func{
		"date": validateDate,
		"role": choice(model.MemberRoles),
		"person_role": choice([]string{
			model.PersonMemorySubject, model.PersonMemoryMentioned,
			model.PersonMemoryPhotographer, model.PersonMemoryNarrator,
		}),
		"relation_type":   choice(model.RelationTypes),
		"memory_type":     choice(model.MemoryTypes),
		"phrase_category": choice(model.PhraseCategories),
	}
}

// validateDate accepts YYYY-MM-DD.
func validateDate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

func choice[T ~string](allowed []T) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, T(fl.Field().String()))
	}
}

func validate(v any) error {
	err := checker.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &model.ValidationError{Message: "invalid request"}
	}
	verr := &model.ValidationError{Message: "invalid request", Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = fieldMessage(fe)
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("ensure this field has at least %s characters", fe.Param())
		}
		return fmt.Sprintf("ensure this value is at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("ensure this field has no more than %s characters", fe.Param())
		}
		return fmt.Sprintf("ensure this value is at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("ensure this value is greater than or equal to %s", fe.Param())
	case "eqfield":
		return "passwords do not match"
	case "date":
		return "date has wrong format, use YYYY-MM-DD"
	case "url":
		return "enter a valid URL"
	case "role", "person_role", "relation_type", "memory_type", "phrase_category":
		return fmt.Sprintf("%q is not a valid choice", fe.Value())
	}
	return "invalid value"
}

// optDate converts an already validated date string.
func optDate(s string) *model.Date {
	if s == "" {
		return nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

func dateString(d *model.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

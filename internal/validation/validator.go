// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package validation provides struct validation using
// go-playground/validator v10 behind a thread-safe singleton. The
// singleton caches struct metadata, so validating request and config
// structs stays cheap on the hot path.
//
// Custom validators:
//   - latitude:  decimal degrees within [-90, 90]
//   - longitude: decimal degrees within [-180, 180]
//   - isodate:   ISO YYYY-MM-DD calendar date
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Error implements error.
func (e FieldError) Error() string { return e.Message }

// Errors aggregates every failed field of one struct.
type Errors struct {
	Fields []FieldError
}

// Error implements error.
func (e *Errors) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// instance returns the singleton validator, building it on first use.
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Registration cannot fail for plain tag names; panic would
		// surface a programming error at startup, not at runtime.
		_ = validate.RegisterValidation("latitude", func(fl validator.FieldLevel) bool {
			v := fl.Field().Float()
			return v >= -90 && v <= 90
		})
		_ = validate.RegisterValidation("longitude", func(fl validator.FieldLevel) bool {
			v := fl.Field().Float()
			return v >= -180 && v <= 180
		})
		_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true // pair with required when emptiness matters
			}
			_, err := time.Parse("2006-01-02", s)
			return err == nil
		})
	})
	return validate
}

// ValidateStruct validates s against its `validate` tags, returning
// *Errors with one FieldError per failed field.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Errors{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "latitude":
		return fmt.Sprintf("%s must be within [-90, 90]", fe.Field())
	case "longitude":
		return fmt.Sprintf("%s must be within [-180, 180]", fe.Field())
	case "isodate":
		return fmt.Sprintf("%s must be an ISO YYYY-MM-DD date", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 16

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=5,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"omitempty,email"`
	Birthday string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
}

type updateRequest struct {
	Username *string `json:"username" validate:"omitnil,min=5,alphanum"`
	Password *string `json:"password" validate:"omitnil,min=8,max=72"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Birthday *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
}

// FieldError is one entry of the details list of a 422 response.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a bounded JSON body into dst and writes a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid request body"
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			msg = "Request body too large"
		case errors.Is(err, io.EOF):
			msg = "Request body is empty"
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return false
	}
	return true
}

// check validates v and writes a 422 with per-field details on failure.
func (a *App) check(w http.ResponseWriter, v any) bool {
	err := a.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return false
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	writeJSON(w, http.StatusUnprocessableEntity, APIError{
		Code:    "VALIDATION_FAILED",
		Message: fmt.Sprintf("%d field(s) failed validation", len(details)),
		Details: details,
	})
	return false
}

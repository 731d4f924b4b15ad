package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldError is one failed constraint, named the way the client sent it.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body. On failure it has already
// written a 422 (or 413) and the handler should return.
func BindJSON(ctx *gin.Context, out any) bool {
	return bindWith(ctx, out, binding.JSON, "json", "Invalid request body")
}

// BindForm is BindJSON for application/x-www-form-urlencoded bodies.
func BindForm(ctx *gin.Context, out any) bool {
	return bindWith(ctx, out, binding.Form, "form", "Invalid form data")
}

func BindQuery(ctx *gin.Context, out any) bool {
	return bindWith(ctx, out, binding.Query, "form", "Invalid query parameters")
}

func bindWith(ctx *gin.Context, out any, b binding.Binding, tag, message string) bool {
	err := ctx.ShouldBindWith(out, b)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondTooLarge(ctx)
		return false
	}

	RespondValidation(ctx, message, bindErrorDetails(err, out, tag))
	return false
}

func bindErrorDetails(err error, out any, tag string) gin.H {
	var (
		invalid   validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &invalid):
		fields := make([]FieldError, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, FieldError{
				Field:   wireName(out, fe.StructField(), tag),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}

	case errors.Is(err, io.EOF):
		return gin.H{"json": "empty_body"}

	case errors.As(err, &syntaxErr):
		return gin.H{"json": "invalid_json_syntax", "offset": syntaxErr.Offset}

	case errors.As(err, &typeErr):
		// encoding/json already reports the wire name here
		field := strings.TrimSpace(typeErr.Field)
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	// e.g. a non-numeric query param
	return gin.H{"reason": err.Error()}
}

// wireName maps a top-level Go field of out to its json or form tag name.
// Request DTOs here are flat, so no nested path walking is needed.
func wireName(out any, goField, tag string) string {
	t := reflect.TypeOf(out)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return goField
	}

	sf, ok := t.FieldByName(goField)
	if !ok {
		return goField
	}

	name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
	if name == "" || name == "-" {
		return goField
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "field required"
	case "email":
		return "value is not a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return fmt.Sprintf("failed %s (%s)", rule, param)
		}
		return "failed " + rule
	}
}

package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	apperrors "userbus/pkg/errors"
	"userbus/pkg/models"
)

// Field matching is case-insensitive, as with encoding/json.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ValidationError reports why a submission was rejected. It unwraps to
// apperrors.ErrValidation so it renders as a 400 response.
type ValidationError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid envelope: %s", e.Reason)
	}
	return fmt.Sprintf("invalid envelope: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation.WithCause(e.Cause).WithDetail("field", e.Field)
}

type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Parser{validate: v}
}

var defaultParser = NewParser()

// Parse decodes and validates a raw batch submission using the shared parser.
func Parse(raw []byte) (*models.BatchEnvelope, error) {
	return defaultParser.Parse(raw)
}

// Parse accepts the whole batch or nothing: any malformed field, a missing
// envelope id, an empty data list, a unit event without an entity id or two
// unit events sharing one rejects the submission.
func (p *Parser) Parse(raw []byte) (*models.BatchEnvelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Field: "body", Reason: "request body is empty"}
	}

	var env models.BatchEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &ValidationError{Field: "body", Reason: "malformed JSON", Cause: err}
	}

	env.ID = strings.TrimSpace(env.ID)

	if err := p.validate.Struct(&env); err != nil {
		return nil, toValidationError(err)
	}

	return &env, nil
}

func toValidationError(err error) *ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Reason: err.Error(), Cause: err}
	}

	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "BatchEnvelope.")

	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "unique":
		reason = "must not repeat an entity id"
	default:
		reason = fmt.Sprintf("failed %q validation", fe.Tag())
	}

	return &ValidationError{Field: field, Reason: reason, Cause: err}
}

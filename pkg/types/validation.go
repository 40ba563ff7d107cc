package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FUNCTIONAL DISCOVERY: Validator built once at package initialization; field
// errors report JSON names so they read the same as the wire payload.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validatePayload runs struct tag validation and wraps failures in kind.
func validatePayload(kind error, payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", kind, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// Validate checks the join payload; any failure is an invalid join.
func (r *JoinRequest) Validate() error {
	r.ChannelID = strings.TrimSpace(r.ChannelID)
	r.UserID = strings.TrimSpace(r.UserID)
	return validatePayload(ErrInvalidJoin, r)
}

// Validate checks a leave payload.
func (r *LeaveRequest) Validate() error {
	return validatePayload(ErrInvalidEvent, r)
}

// Validate checks the structural invariants of a drawing event.
// TECHNICAL DISCOVERY: Shape end events without an anchor cannot be rendered by a
// stateless receiver, so they are rejected rather than forwarded.
func (e *DrawingEvent) Validate() error {
	if err := validatePayload(ErrInvalidDrawing, e); err != nil {
		return err
	}
	if !e.Tool.Valid() {
		return fmt.Errorf("%w: unknown tool", ErrInvalidDrawing)
	}
	if e.Type == PhaseEnd && e.Tool.IsShape() {
		if _, _, ok := e.Anchor(); !ok {
			return fmt.Errorf("%w: %s end event missing startX/startY", ErrInvalidDrawing, e.Tool)
		}
	}
	return nil
}

// Validate checks a toggle-lock payload.
func (r *ToggleLockRequest) Validate() error {
	return validatePayload(ErrInvalidEvent, r)
}

// Validate checks a share-pdf payload.
func (r *SharePDFRequest) Validate() error {
	return validatePayload(ErrInvalidEvent, r)
}

// Validate checks a toggle-pdf-visibility payload.
func (r *TogglePDFVisibilityRequest) Validate() error {
	return validatePayload(ErrInvalidEvent, r)
}

// Validate checks a remove-pdf payload.
func (r *RemovePDFRequest) Validate() error {
	return validatePayload(ErrInvalidEvent, r)
}

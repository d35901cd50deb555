package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var branchRegex = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)

func init() {
	validate.RegisterValidation("branchname", func(fl validator.FieldLevel) bool {
		return ValidBranchName(fl.Field().String())
	})
}

// ValidBranchName reports whether s is safe to hand to git as a branch.
// Empty means "use the configured default" and is accepted; anything
// that could be mistaken for a flag or escape the ref namespace is not.
func ValidBranchName(s string) bool {
	if s == "" {
		return true
	}
	if strings.HasPrefix(s, "-") || strings.Contains(s, "..") || strings.Contains(s, "//") {
		return false
	}
	return branchRegex.MatchString(s)
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// DecodeLenient is Decode for endpoints whose body is optional: an
// empty body leaves v at its zero value, malformed JSON is still an
// error.
func DecodeLenient(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

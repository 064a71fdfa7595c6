package snapshot

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/tbourn/go-menu-tracker/internal/normalize"
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("invalid snapshot")

// ValidationError reports every required field missing from a snapshot.
// No write happens for a snapshot that fails validation.
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Reason != "" && len(e.Missing) > 0:
		return fmt.Sprintf("invalid snapshot: %s; missing %s", e.Reason, strings.Join(e.Missing, ", "))
	case e.Reason != "":
		return "invalid snapshot: " + e.Reason
	default:
		return "invalid snapshot: missing " + strings.Join(e.Missing, ", ")
	}
}

// Is makes errors.Is(err, ErrInvalid) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// requiredSections are checked in this order so messages are stable.
var requiredSections = []struct {
	path string
	typ  gjson.Type
	arr  bool
}{
	{path: "metadata", typ: gjson.JSON},
	{path: "source", typ: gjson.JSON},
	{path: "restaurant", typ: gjson.JSON},
	{path: "categories", typ: gjson.JSON, arr: true},
	{path: "products", typ: gjson.JSON, arr: true},
}

// ValidateRaw checks a raw JSON snapshot for the required sections and
// fields and lists all that are missing.
func ValidateRaw(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return &ValidationError{Reason: "malformed JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return &ValidationError{Reason: "snapshot is not a JSON object"}
	}

	var missing []string
	for _, sec := range requiredSections {
		v := root.Get(sec.path)
		if !v.Exists() || v.Type != sec.typ || v.IsArray() != sec.arr {
			missing = append(missing, sec.path)
		}
	}
	if root.Get("metadata").IsObject() && timeOf(root.Get("metadata.scraped_at")) == nil && timeOf(root.Get("source.scraped_at")) == nil {
		missing = append(missing, "metadata.scraped_at")
	}
	if root.Get("restaurant").IsObject() && strings.TrimSpace(root.Get("restaurant.name").String()) == "" {
		missing = append(missing, "restaurant.name")
	}
	if root.Get("source").IsObject() && strings.TrimSpace(root.Get("source.url").String()) == "" {
		missing = append(missing, "source.url")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Validate applies the same rules as ValidateRaw to a decoded snapshot.
func Validate(s *Snapshot) error {
	if s == nil {
		return &ValidationError{Reason: "nil snapshot"}
	}
	var missing []string
	if s.Metadata == nil {
		missing = append(missing, "metadata")
	}
	if s.Source == nil {
		missing = append(missing, "source")
	}
	if s.Restaurant == nil {
		missing = append(missing, "restaurant")
	}
	if s.Categories == nil {
		missing = append(missing, "categories")
	}
	if s.Products == nil {
		missing = append(missing, "products")
	}
	if _, ok := s.Timestamp(); s.Metadata != nil && !ok {
		missing = append(missing, "metadata.scraped_at")
	}
	if s.Restaurant != nil && strings.TrimSpace(s.Restaurant.Name) == "" {
		missing = append(missing, "restaurant.name")
	}
	if s.Source != nil && strings.TrimSpace(s.Source.URL) == "" {
		missing = append(missing, "source.url")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func productValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateProduct checks one product record. A non-nil result describes
// why the record cannot be imported; the rest of the snapshot is unaffected.
func ValidateProduct(p Product) error {
	if len(p.DecodeErrors) > 0 {
		return errors.New(strings.Join(p.DecodeErrors, "; "))
	}
	if normalize.Name(p.Name) == "" {
		return errors.New("name is required")
	}
	err := productValidator().Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		case "lte", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

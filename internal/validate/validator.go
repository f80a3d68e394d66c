package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ppiankov/factrag/internal/model"
)

var (
	factIDPattern  = regexp.MustCompile(`^(fact_[0-9]{3,}|pib-\d{4}-\d{3})$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// structs is shared; validator.Validate caches struct metadata and is safe for concurrent use
var structs = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("factid", func(fl validator.FieldLevel) bool {
		return factIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("semver3", func(fl validator.FieldLevel) bool {
		return versionPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.Category(fl.Field().String()).Valid()
	})

	return v
}

// Issue is a single schema violation
type Issue struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	return i.Field + ": " + i.Message
}

// SchemaError collects every violation found in a document
type SchemaError struct {
	Issues []Issue
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("%d schema violation(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

// FactBase validates the document structure, every fact and ID uniqueness.
// Embedding length is not checked here; the store backfills bad embeddings.
func FactBase(fb *model.FactBase) error {
	if fb == nil {
		return &SchemaError{Issues: []Issue{{Field: "facts", Message: "document is empty"}}}
	}

	var issues []Issue
	if err := structs.Struct(fb); err != nil {
		issues = append(issues, toIssues(err)...)
	}

	seen := make(map[string]int, len(fb.Facts))
	for i, f := range fb.Facts {
		if f.ID == "" {
			continue
		}
		if first, dup := seen[f.ID]; dup {
			issues = append(issues, Issue{
				Field:   fmt.Sprintf("facts[%d].id", i),
				Message: fmt.Sprintf("duplicate id %q (first seen at facts[%d])", f.ID, first),
			})
			continue
		}
		seen[f.ID] = i
	}

	if len(issues) > 0 {
		return &SchemaError{Issues: issues}
	}
	return nil
}

// Config validates a loaded configuration
func Config(cfg *model.Config) error {
	if err := structs.Struct(cfg); err != nil {
		return &SchemaError{Issues: toIssues(err)}
	}
	return nil
}

func toIssues(err error) []Issue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Field: "document", Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
	}
	return issues
}

// fieldPath drops the root struct name: "FactBase.facts[0].id" -> "facts[0].id"
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "factid":
		return fmt.Sprintf("must match fact_NNN or pib-YYYY-NNN, got %q", fe.Value())
	case "semver3":
		return fmt.Sprintf("must be MAJOR.MINOR.PATCH, got %q", fe.Value())
	case "category":
		return fmt.Sprintf("must be one of %v, got %q", model.Categories(), fe.Value())
	case "datetime":
		return fmt.Sprintf("must be a YYYY-MM-DD date, got %q", fe.Value())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

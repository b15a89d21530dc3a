// Package retry implements the error classifier, exponential backoff, and
// structured error records from spec §4.9 and §7. The bracketed-prefix log
// style and fmt.Errorf-wrapped errors are grounded on the teacher's
// pervasive log.Printf("[Component ...] ...", ...) idiom (e.g.
// internal/auth/checker.go, internal/suggestions/manager.go).
package retry

import (
	"context"
	"errors"
	"time"

	"tgharvester/internal/wire"
)

// Category is the error taxonomy from spec §4.9 / §7.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNetwork
	CategoryRateLimit
	CategoryAuth
	CategoryPermission
	CategoryValidation
	CategoryResource
	CategorySystem
	CategoryBusiness
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryRateLimit:
		return "rate-limit"
	case CategoryAuth:
		return "auth"
	case CategoryPermission:
		return "permission"
	case CategoryValidation:
		return "validation"
	case CategoryResource:
		return "resource"
	case CategorySystem:
		return "system"
	case CategoryBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// Retryable reports whether the classifier's exponential backoff applies
// to this category, per spec §4.9 ("retryable classes: network,
// resource-transient").
func (c Category) Retryable() bool {
	return c == CategoryNetwork || c == CategoryResource
}

// Classifiable lets a caller attach a category directly to an error,
// bypassing heuristic classification (used by components that already
// know the failure's nature, e.g. a validation pre-check).
type Classifiable interface {
	error
	Category() Category
}

// Classify categorizes err at the component boundary into spec §4.9's
// nine-value taxonomy.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if c, ok := err.(Classifiable); ok {
		return c.Category()
	}
	if _, ok := wire.AsFloodWait(err); ok {
		return CategoryRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryNetwork
	}
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Cat
	}
	return CategoryUnknown
}

// CategorizedError lets component code explicitly tag an error with a
// category without inventing a bespoke type per call site.
type CategorizedError struct {
	Cat Category
	Err error
}

func (e *CategorizedError) Error() string { return e.Err.Error() }
func (e *CategorizedError) Unwrap() error { return e.Err }

func Tag(cat Category, err error) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Cat: cat, Err: err}
}

// Record is the structured error record from spec §4.9.
type Record struct {
	Type             string
	Message          string
	Category         Category
	Severity         string
	Timestamp        time.Time
	Context          map[string]any
	SuggestedAction  string
}

func NewRecord(err error, context map[string]any) Record {
	cat := Classify(err)
	sev := "warning"
	action := "retry"
	switch cat {
	case CategoryAuth, CategoryPermission, CategoryValidation:
		sev = "error"
		action = "abort"
	case CategorySystem:
		sev = "critical"
		action = "abort"
	case CategoryBusiness:
		sev = "info"
		action = "skip"
	}
	return Record{
		Type:            "error",
		Message:         err.Error(),
		Category:        cat,
		Severity:        sev,
		Timestamp:       time.Now(),
		Context:         context,
		SuggestedAction: action,
	}
}

// Sink receives error telemetry, analogous to the teacher's
// sentry.CaptureException calls sprinkled through handler error paths.
type Sink interface {
	Capture(err error, cat Category)
}

// NopSink is the default Sink when no DSN/telemetry backend is configured,
// mirroring config.Config.SentryDSN being optional in the teacher.
type NopSink struct{}

func (NopSink) Capture(error, Category) {}

// AngelaMos | 2026
// errors.go

package referral

import (
	"errors"
	"fmt"

	"github.com/TatyOko28/refresh-system/internal/core"
)

// Kind tags every failure the referral core reports. Callers switch on
// KindOf(err) rather than matching error values.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidExpiry
	KindCodeSpaceExhausted
	KindInvalidReferralCode
	KindDuplicateEmail
	KindSelfReferral
	KindNotFound
	KindTransient
	KindUndeliverableEmail
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindInvalidExpiry:       "invalid_expiry",
	KindCodeSpaceExhausted:  "code_space_exhausted",
	KindInvalidReferralCode: "invalid_referral_code",
	KindDuplicateEmail:      "duplicate_email",
	KindSelfReferral:        "self_referral",
	KindNotFound:            "not_found",
	KindTransient:           "transient_failure",
	KindUndeliverableEmail:  "undeliverable_email",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable is true only for transient failures. Validation kinds are
// terminal and CodeSpaceExhausted needs operator attention.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Op + ": " + e.Kind.String()
	case e.Op == "":
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidExpiry       = &Error{Kind: KindInvalidExpiry}
	ErrCodeSpaceExhausted  = &Error{Kind: KindCodeSpaceExhausted}
	ErrInvalidReferralCode = &Error{Kind: KindInvalidReferralCode}
	ErrDuplicateEmail      = &Error{Kind: KindDuplicateEmail}
	ErrSelfReferral        = &Error{Kind: KindSelfReferral}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrTransient           = &Error{Kind: KindTransient}
	ErrUndeliverableEmail  = &Error{Kind: KindUndeliverableEmail}
)

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the tag from err. Untagged store and cache failures that
// look retryable are reported as KindTransient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if core.IsTransientError(err) {
		return KindTransient
	}

	return KindUnknown
}

// classify tags an untagged error coming out of the store. Errors that are
// already tagged pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if core.IsTransientError(err) {
		return newError(op, KindTransient, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

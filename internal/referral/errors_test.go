// AngelaMos | 2026
// errors_test.go

package referral

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TatyOko28/refresh-system/internal/core"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := newError("register", KindDuplicateEmail, errors.New("users_email_key"))

	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NotErrorIs(t, err, ErrSelfReferral)
	assert.ErrorIs(t, fmt.Errorf("handler: %w", err), ErrDuplicateEmail)
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", &Error{Kind: KindNotFound}, "not_found"},
		{"op only", &Error{Kind: KindSelfReferral, Op: "register"}, "register: self_referral"},
		{"cause only", &Error{Kind: KindTransient, Err: errors.New("timeout")}, "transient_failure: timeout"},
		{
			"full",
			&Error{Kind: KindInvalidExpiry, Op: "create code", Err: errors.New("in the past")},
			"create code: invalid_expiry: in the past",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindTransient, KindOf(context.Canceled))
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("ping: %w", core.ErrUnavailable)))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrap: %w", ErrNotFound)))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	tagged := newError("inner", KindSelfReferral, nil)
	assert.Same(t, tagged, classify("outer", tagged))

	transient := classify("list", context.DeadlineExceeded)
	assert.Equal(t, KindTransient, KindOf(transient))
	assert.True(t, KindOf(transient).Retryable())

	plain := classify("list", errors.New("bad column"))
	assert.Equal(t, KindUnknown, KindOf(plain))
	assert.Contains(t, plain.Error(), "list: bad column")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "code_space_exhausted", KindCodeSpaceExhausted.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkTransient(t *testing.T) {
	err := MarkTransient(New("smtp handshake reset"))

	assert.True(t, IsTransient(err))
	assert.False(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "smtp handshake reset")
}

func TestMarkPreservesWrappedChain(t *testing.T) {
	base := New("dial tcp: connection refused")
	err := MarkTransient(Wrap(base, "send application"))

	require.True(t, IsTransient(err))
	assert.True(t, Is(err, base))
	assert.Contains(t, err.Error(), "send application")
}

func TestKindsAreDisjoint(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"transient", MarkTransient(New("x")), IsTransient},
		{"rate_limited", MarkRateLimited(New("x")), IsRateLimited},
		{"malformed", MarkMalformed(New("x")), IsMalformed},
		{"permission_denied", MarkPermissionDenied(New("x")), IsPermissionDenied},
		{"conflict", MarkConflict(New("x")), IsConflict},
		{"infeasible", MarkInfeasible(New("x")), IsInfeasible},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.check(tc.err), "own check should match")
			for j, other := range cases {
				if i == j {
					continue
				}
				assert.False(t, other.check(tc.err), "%s should not match %s", tc.name, other.name)
			}
		})
	}
}

func TestTimeoutCountsAsTransient(t *testing.T) {
	err := Wrap(ErrTimeout, "extraction call")
	assert.True(t, IsTransient(err))
}

func TestServiceUnavailableCountsAsTransient(t *testing.T) {
	err := Wrap(ErrServiceUnavailable, "calendar api")
	assert.True(t, IsTransient(err))
}

func TestMarkNilReturnsNil(t *testing.T) {
	assert.Nil(t, MarkTransient(nil))
	assert.Nil(t, MarkRateLimited(nil))
	assert.Nil(t, MarkMalformed(nil))
	assert.Nil(t, MarkPermissionDenied(nil))
	assert.Nil(t, MarkConflict(nil))
	assert.Nil(t, MarkInfeasible(nil))
}

func TestKindCheckersRejectNil(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsRateLimited(nil))
	assert.False(t, IsMalformed(nil))
	assert.False(t, IsPermissionDenied(nil))
	assert.False(t, IsConflict(nil))
	assert.False(t, IsInfeasible(nil))
}

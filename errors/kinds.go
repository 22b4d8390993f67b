package errors

// Failure kinds reported by pipeline collaborators. Stage execution maps
// each kind to a retry decision: transient and rate-limited failures are
// retried, malformed and permission-denied failures are fatal, conflicts
// trigger one scheduling re-search, infeasible ends the scheduling stage.
//
// Collaborator bindings attach a kind with the Mark* helpers so the
// original error message and stack survive:
//
//	return errors.MarkTransient(errors.Wrap(err, "smtp handshake"))
var (
	// ErrTransient indicates a failure expected to clear on its own
	// (network blip, upstream 5xx).
	ErrTransient = New("transient failure")

	// ErrRateLimited indicates the destination refused the action because
	// its quota was exhausted; retry after the bucket frees up.
	ErrRateLimited = New("rate limited")

	// ErrMalformed indicates the input can never succeed as given.
	ErrMalformed = New("malformed input")

	// ErrPermissionDenied indicates the credential or grant is insufficient.
	ErrPermissionDenied = New("permission denied")

	// ErrInfeasible indicates no calendar slot exists within the search
	// horizon.
	ErrInfeasible = New("no feasible slot")
)

// MarkTransient tags err as a transient failure. Returns nil for nil input.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrTransient)
}

// MarkRateLimited tags err as a rate-limited failure.
func MarkRateLimited(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrRateLimited)
}

// MarkMalformed tags err as a malformed-input failure.
func MarkMalformed(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrMalformed)
}

// MarkPermissionDenied tags err as a permission failure.
func MarkPermissionDenied(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrPermissionDenied)
}

// MarkConflict tags err as a scheduling conflict.
func MarkConflict(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrConflict)
}

// MarkInfeasible tags err as a no-slot-found failure.
func MarkInfeasible(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrInfeasible)
}

// IsTransient reports whether err carries the transient kind. Timeouts and
// unavailable services count as transient.
func IsTransient(err error) bool {
	return err != nil && (Is(err, ErrTransient) || Is(err, ErrTimeout) || Is(err, ErrServiceUnavailable))
}

// IsRateLimited reports whether err carries the rate-limited kind.
func IsRateLimited(err error) bool {
	return err != nil && Is(err, ErrRateLimited)
}

// IsMalformed reports whether err carries the malformed kind.
func IsMalformed(err error) bool {
	return err != nil && Is(err, ErrMalformed)
}

// IsPermissionDenied reports whether err carries the permission kind.
func IsPermissionDenied(err error) bool {
	return err != nil && Is(err, ErrPermissionDenied)
}

// IsConflict reports whether err carries the conflict kind.
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsInfeasible reports whether err carries the infeasible kind.
func IsInfeasible(err error) bool {
	return err != nil && Is(err, ErrInfeasible)
}

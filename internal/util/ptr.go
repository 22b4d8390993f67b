package util

// Ptr returns a pointer to v. Handy for filling optional record fields
// from literals.
func Ptr[T any](v T) *T {
	return &v
}

// Package ptr has helpers for optional config values.
package ptr

// To returns a pointer to v.
func To[T any](v T) *T {
	return &v
}


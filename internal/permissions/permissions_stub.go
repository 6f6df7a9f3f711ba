//go:build !darwin

package permissions

// EnsurePermissions is a no-op off macOS; device access is governed by the
// audio group on Linux stations.
func EnsurePermissions() error {
	return nil
}

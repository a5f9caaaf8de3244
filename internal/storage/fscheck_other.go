//go:build !darwin && !linux

package storage

func statfsType(string) (string, error) {
	return "", ErrFilesystemUnknown
}

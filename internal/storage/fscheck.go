package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFilesystemUnknown is returned when the platform cannot report a filesystem type.
var ErrFilesystemUnknown = errors.New("filesystem type unknown on this platform")

var remoteFilesystems = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// CheckLocalFilesystem reports an error when the journal database at path
// would live on a network filesystem, where SQLite locking is unreliable.
// Paths that do not exist yet are checked at their nearest existing parent.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, statfsType)
}

func checkLocalFilesystem(path string, fsType func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	existing, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve journal path %q: %w", path, err)
	}

	kind, err := fsType(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isRemote(kind) {
		return fmt.Errorf(
			"journal path %q is on network filesystem %q; SQLite requires a local filesystem, set state.path to a local file",
			path, kind,
		)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}

func isRemote(kind string) bool {
	return remoteFilesystems[strings.ToLower(strings.TrimSpace(kind))]
}

package archive

import (
	"path"
	"strings"

	"github.com/motiejus/squash/internal/squasherr"
)

// ValidatePath normalizes a tar entry's declared path and rejects it if,
// after normalization, it is absolute or escapes the extraction root via a
// ".." component. It returns the cleaned, slash-separated relative path.
func ValidatePath(name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(slashed) {
		return "", squasherr.UnsafePath(name)
	}
	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", squasherr.UnsafePath(name)
	}
	return clean, nil
}

// ValidateLinkTarget validates a symlink or hardlink target the same way
// as an entry path, but allows the empty string's caller to reject
// separately (not every typeflag requires a target).
func ValidateLinkTarget(target string) (string, error) {
	if target == "" {
		return "", nil
	}
	return ValidatePath(target)
}

// Package dockerio shells out to the docker CLI to turn a name:tag
// reference into a byte stream and back, so the engine itself never knows
// whether its Reader or Writer is backed by a file or a daemon pipe.
package dockerio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/motiejus/squash/internal/squasherr"
)

// Export runs `docker save` for ref into a file under dir and returns its
// path. The caller owns cleanup of the returned path.
func Export(ref string, dir string) (string, error) {
	path := filepath.Join(dir, "source-"+strings.NewReplacer(":", "_", "/", "_").Replace(ref)+".tar")
	cmd := exec.Command("docker", "save", "-o", path, ref)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", squasherr.DaemonErrorf(err, "docker save %s: %s", ref, strings.TrimSpace(string(out)))
	}
	return path, nil
}

// NewTempTag returns a disposable name:tag the caller should embed in the
// archive's manifest.RepoTags before Load runs, so a failed retag never
// leaves the daemon holding the final, user-facing name.
func NewTempTag() string {
	return fmt.Sprintf("squash-temp-%s:latest", strings.ToLower(uuid.NewString()[:8]))
}

// Load runs `docker load` on the tarball at path, which must have
// tempTag as its sole RepoTags entry, retags the result as tag, then
// removes the temporary tag.
func Load(path string, tempTag string, tag string) error {
	if out, err := exec.Command("docker", "load", "-i", path).CombinedOutput(); err != nil {
		return squasherr.DaemonErrorf(err, "docker load: %s", strings.TrimSpace(string(out)))
	}

	if out, err := exec.Command("docker", "tag", tempTag, tag).CombinedOutput(); err != nil {
		return squasherr.DaemonErrorf(err, "docker tag %s %s: %s", tempTag, tag, strings.TrimSpace(string(out)))
	}

	if out, err := exec.Command("docker", "rmi", tempTag).CombinedOutput(); err != nil {
		return squasherr.DaemonErrorf(err, "docker rmi %s: %s", tempTag, strings.TrimSpace(string(out)))
	}

	return nil
}

// LooksLikeReference reports whether s names a local file (and so should
// be opened directly) or a docker name:tag reference (and so should be
// exported first). A bare name:tag never resolves to an existing path on
// disk in practice, but the existence check still takes precedence so a
// file literally named "foo:tag" is never misread as a reference.
func LooksLikeReference(s string) bool {
	if s == "-" {
		return false
	}
	if _, err := os.Stat(s); err == nil {
		return false
	}
	return strings.Contains(s, ":")
}

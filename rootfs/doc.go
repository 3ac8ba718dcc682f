// Package rootfs extracts all layers of a Docker container image to a
// single tarball. It is the merge engine's degenerate case: flattening
// [0, L) and emitting the result unwrapped from image-archive framing.
// Entries are written in deterministic lexicographic path order, with
// directories sorted ahead of their contents.
//
// == Special files: opaque files and dirs (.wh.*) ==
//
// From mount.aufs(8)[1]:
//
// The whiteout is for hiding files on lower branches. Also it is applied to
// stop readdir going lower branches. The latter case is called ‘opaque
// directory.’ Any whiteout is an empty file, it means whiteout is just an
// mark. In the case of hiding lower files, the name of whiteout is
// ‘.wh.<filename>.’ And in the case of stopping readdir, the name is
// ‘.wh..wh..opq’. All whiteouts are hardlinked, including ‘<writable branch
// top dir>/.wh..wh.aufs`.
//
// My interpretation:
// - a hardlink called `.wh..wh..opq` means that directory contents from the
// layers below the mentioned file should be ignored. Higher layers may add
// files on top.
// - if hardlink `.wh.([^/]+)` is found, $1 should be deleted from the current
// and lower layers.
//
// [1]: https://manpages.debian.org/unstable/aufs-tools/mount.aufs.8.en.html
package rootfs

// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package localserver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var (
	// errEmptyPath: no target path was supplied.
	errEmptyPath = errors.New("path is required")

	// errOutsideRoot: the target path is absolute or resolves outside
	// the data root.
	errOutsideRoot = errors.New("path escapes the data root")
)

// cleanRelative converts a frontend-supplied slash path into a cleaned
// relative OS path that stays lexically inside the root.
func cleanRelative(raw string) (string, error) {
	if raw == "" {
		return "", errEmptyPath
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, `\`) {
		return "", errOutsideRoot
	}

	native := filepath.FromSlash(raw)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", errOutsideRoot
	}

	cleaned := filepath.Clean(native)
	if cleaned == "." {
		return "", errEmptyPath
	}
	if !filepath.IsLocal(cleaned) {
		return "", errOutsideRoot
	}
	return cleaned, nil
}

// maxLinkHops bounds how many dangling symlinks resolvePath follows.
const maxLinkHops = 40

// checkResolved verifies that relative, joined to root, does not escape
// root through a symlink, including a dangling one whose target does
// not exist yet.
func checkResolved(root, relative string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolving data root: %w", err)
	}

	resolved, err := resolvePath(filepath.Join(root, relative), maxLinkHops)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", relative, err)
	}
	// The target itself being (a link to) the root is an escape too.
	if !strings.HasPrefix(resolved, resolvedRoot+string(filepath.Separator)) {
		return errOutsideRoot
	}
	return nil
}

// resolvePath returns where path points once every symlink along it is
// followed. Components that do not exist are kept as they are; a
// dangling link is followed to its target.
func resolvePath(path string, hops int) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if info, lstatErr := os.Lstat(path); lstatErr == nil && info.Mode()&fs.ModeSymlink != 0 {
		if hops == 0 {
			return "", fmt.Errorf("too many links at %s", path)
		}
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		return resolvePath(target, hops-1)
	}

	parent := filepath.Dir(path)
	if parent == path {
		return "", err
	}
	resolvedParent, err := resolvePath(parent, hops)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// writeAtomic streams body into a temporary file beside relative and
// renames it into place, all through root. It returns the hex BLAKE3
// digest and the number of bytes written. On failure the temporary file
// is removed and the previous contents of relative, if any, are intact.
func writeAtomic(root *os.Root, relative string, body io.Reader) (string, int64, error) {
	dir := filepath.Dir(relative)
	if dir != "." {
		if err := root.MkdirAll(dir, 0o700); err != nil {
			return "", 0, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	tempName := filepath.Join(dir, "."+filepath.Base(relative)+".tmp-"+uuid.NewString())
	file, err := root.OpenFile(tempName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("creating temporary file: %w", err)
	}

	hasher := blake3.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), body)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = root.Rename(tempName, relative)
	}
	if err != nil {
		root.Remove(tempName)
		return "", written, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

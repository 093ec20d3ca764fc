// Package pathutil provides cross-platform path utilities for gitdeck.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// roomPrefix namespaces project rooms from any other channel a transport may carry.
const roomPrefix = "project:"

// EncodePath converts a filesystem path to a flat string safe for use as
// an identifier.
//
// Examples:
//
//	Unix:    /Users/brian/Projects/app  → -Users-brian-Projects-app
//	Windows: C:\Users\brian\Projects\app → -C:-Users-brian-Projects-app
func EncodePath(path string) string {
	// filepath.ToSlash converts OS-specific separators to "/", so the
	// subsequent replace works identically on Unix, macOS, and Windows.
	return strings.ReplaceAll(filepath.ToSlash(filepath.Clean(path)), "/", "-")
}

// RoomID derives the broadcast room for a working directory. Two processes
// sharing a directory compute the same room without coordinating.
func RoomID(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return roomPrefix + EncodePath(abs)
}

// ResolveDir returns the absolute form of dir after checking that it exists
// and is a directory. An empty dir resolves to the process working directory.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// IsGitRepo reports whether dir is inside a git working tree, by looking for
// a .git entry in dir or any parent.
func IsGitRepo(dir string) bool {
	cur := filepath.Clean(dir)
	for {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return false
		}
		cur = parent
	}
}

// Package security validates operator-supplied paths before they are opened or executed.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath     = errors.New("file path cannot be empty")
	ErrNotExecutable = errors.New("file is not executable")
)

// Shell metacharacters are rejected outright; paths here come from env vars
// and end up in exec.Command for phrase-pack plugins.
var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r"}

// ValidateFilePath cleans path, makes it absolute and resolves symlinks.
// A path that does not exist yet is returned cleaned.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return "", fmt.Errorf("file path contains forbidden character %q: %s", char, path)
		}
	}

	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cleanPath, nil
		}
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	return resolvedPath, nil
}

// SafeReadFile reads a file after validating the path.
func SafeReadFile(path string) ([]byte, error) {
	validPath, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(validPath) // #nosec G304 -- path validated above
}

// ValidateExecutable validates path and checks that it names an executable regular file.
func ValidateExecutable(path string) (string, error) {
	validPath, err := ValidateFilePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(validPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", validPath, err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return "", fmt.Errorf("%s: %w", validPath, ErrNotExecutable)
	}
	return validPath, nil
}

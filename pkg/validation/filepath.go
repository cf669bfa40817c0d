package validation

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxFileSize is the largest file the validator will admit for
	// reading. Files at or above this size are rejected before any read.
	DefaultMaxFileSize = 100 * 1024 * 1024

	// DefaultMaxPathLen is the longest accepted path in bytes.
	DefaultMaxPathLen = 1024
)

// PathValidator validates user-provided file paths to prevent directory
// traversal attacks and resource exhaustion.
//
// It implements defense-in-depth with multiple validation layers:
//   - Percent-decoding (encoded traversal must be visible to later layers)
//   - Lexical validation (reject absolute paths, .., UNC prefixes, NUL)
//   - Path normalization
//   - Symbolic link resolution
//   - Containment verification
//   - File size limiting
//
// Thread-safe for concurrent use.
type PathValidator struct {
	basePath          string
	resolvedBase      string
	maxPathLen        int
	maxFileSize       int64
	blockedExtensions map[string]bool // nil means DefaultBlockedExtensions
	validations       uint64
	rejections        uint64
}

// ValidationError represents a path validation failure with context for logging.
type ValidationError struct {
	UserPath     string    // Original user input that was rejected
	Reason       string    // Human-readable reason for rejection
	ResolvedPath string    // Resolved path if resolution succeeded (may be empty)
	Timestamp    time.Time // When the validation error occurred
}

// Error implements the error interface.
//
// Format: "path validation failed: {Reason} (input: {UserPath})"
func (e *ValidationError) Error() string {
	if e.ResolvedPath != "" {
		return fmt.Sprintf("path validation failed: %s (input: %s, resolved: %s)",
			e.Reason, e.UserPath, e.ResolvedPath)
	}
	return fmt.Sprintf("path validation failed: %s (input: %s)", e.Reason, e.UserPath)
}

// NewPathValidator creates a new path validator for the given base directory
// with the default size limits.
//
// The base directory must be an absolute path and must exist. All validated
// paths are restricted to this directory and its subdirectories.
//
// Returns error if:
//   - basePath is empty or not absolute
//   - basePath does not exist or is not a directory
//   - symbolic links in basePath cannot be resolved
func NewPathValidator(basePath string) (*PathValidator, error) {
	return NewPathValidatorWithLimits(basePath, DefaultMaxFileSize, DefaultMaxPathLen)
}

// NewPathValidatorWithLimits creates a path validator with explicit limits.
// Useful for testing and for gates configured from file.
func NewPathValidatorWithLimits(basePath string, maxFileSize int64, maxPathLen int) (*PathValidator, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if !filepath.IsAbs(basePath) {
		return nil, fmt.Errorf("base path must be absolute: %s", basePath)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("max file size must be positive, got %d", maxFileSize)
	}
	if maxPathLen <= 0 {
		return nil, fmt.Errorf("max path length must be positive, got %d", maxPathLen)
	}

	info, err := os.Stat(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("base path does not exist: %s", basePath)
		}
		return nil, fmt.Errorf("cannot access base path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path is not a directory: %s", basePath)
	}

	resolvedBase, err := filepath.EvalSymlinks(basePath)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve symbolic links in base path: %w", err)
	}

	return &PathValidator{
		basePath:     basePath,
		resolvedBase: resolvedBase,
		maxPathLen:   maxPathLen,
		maxFileSize:  maxFileSize,
	}, nil
}

// MaxFileSize returns the configured read size limit in bytes.
func (v *PathValidator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateReadPath validates that userPath is safe to read.
//
// A path passes only if, after percent-decoding, normalization, and symlink
// resolution, it stays inside the base directory, the target file (when it
// exists) is under the size limit, and the file content carries no embedded
// NUL byte. Rejections name their category ("path traversal", "size",
// "null byte") in the message.
func (v *PathValidator) ValidateReadPath(userPath string) Result {
	atomic.AddUint64(&v.validations, 1)
	resolved, err := v.resolve(userPath)
	if err != nil {
		return Rejected(rejectionMessage(err))
	}

	info, statErr := os.Stat(resolved)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// Nothing to read yet; the path itself is contained, which is
			// all that can be checked before the file exists.
			return OK()
		}
		atomic.AddUint64(&v.rejections, 1)
		return Rejected(fmt.Sprintf("cannot access path: %v", statErr))
	}
	if info.IsDir() {
		atomic.AddUint64(&v.rejections, 1)
		return Rejected("path is a directory, not a file")
	}
	if info.Size() >= v.maxFileSize {
		atomic.AddUint64(&v.rejections, 1)
		return Rejected(fmt.Sprintf("file size %d exceeds maximum allowed size %d", info.Size(), v.maxFileSize))
	}

	if nulErr := scanFileForNUL(resolved); nulErr != nil {
		atomic.AddUint64(&v.rejections, 1)
		return Rejected(nulErr.Error())
	}

	return OK()
}

// ResolveReadPath runs the same layers as ValidateReadPath minus the content
// scan and returns the resolved absolute path for use with os.Open and
// friends. Callers that go on to read the content should use SafeReadFile,
// which scans for embedded NUL bytes as it reads.
func (v *PathValidator) ResolveReadPath(userPath string) (string, error) {
	atomic.AddUint64(&v.validations, 1)
	return v.resolve(userPath)
}

// resolve performs the decode / lexical / normalize / symlink / containment
// layers shared by read and write validation. Returns the resolved absolute
// path on success. Callers count the validation; resolve counts rejections.
func (v *PathValidator) resolve(userPath string) (string, error) {
	// Layer 1: Reject empty paths
	if userPath == "" {
		return "", v.reject(userPath, "path cannot be empty")
	}

	// Check path length before processing
	if len(userPath) > v.maxPathLen {
		return "", v.reject(userPath, fmt.Sprintf("path length exceeds maximum of %d bytes", v.maxPathLen))
	}

	// Layer 2: Percent-decode once so encoded traversal sequences are
	// visible to the lexical layer. A path still carrying encoded dots or
	// separators after one pass was double-encoded and is hostile.
	decoded := userPath
	if strings.Contains(userPath, "%") {
		d, err := url.PathUnescape(userPath)
		if err != nil {
			return "", v.reject(userPath, "path traversal: malformed percent-encoding")
		}
		decoded = d
		if containsEncodedSeparator(decoded) {
			return "", v.reject(userPath, "path traversal: double-encoded sequence")
		}
	}

	// Layer 3: NUL bytes never appear in legitimate paths
	if strings.ContainsRune(decoded, 0) {
		return "", v.reject(userPath, "null byte in path")
	}

	// Layer 4: Lexical validation on the slash-normalized form. Attackers
	// mix separators, so backslashes count as separators here even off
	// Windows.
	slashed := strings.ReplaceAll(decoded, `\`, `/`)
	if strings.HasPrefix(decoded, `\\`) || strings.HasPrefix(slashed, "//") {
		return "", v.reject(userPath, "path traversal: UNC path not allowed")
	}
	if strings.HasPrefix(slashed, "/") || hasDrivePrefix(decoded) {
		return "", v.reject(userPath, "path traversal: absolute path not allowed")
	}
	if !filepath.IsLocal(filepath.FromSlash(slashed)) {
		return "", v.reject(userPath, "path traversal: path escapes allowed directory")
	}

	// Layer 5: Clean and join
	cleanPath := filepath.Clean(filepath.FromSlash(slashed))
	fullPath := filepath.Join(v.basePath, cleanPath)

	// Layer 6: Resolve symbolic links. When the leaf does not exist yet,
	// resolve the nearest existing ancestor so paths being created can
	// still be checked for containment.
	resolvedPath, err := resolveExisting(fullPath)
	if err != nil {
		return "", v.reject(userPath, "path traversal: cannot resolve path")
	}

	// Layer 7: Verify containment against the resolved base
	relPath, err := filepath.Rel(v.resolvedBase, resolvedPath)
	if err != nil {
		return "", v.rejectResolved(userPath, resolvedPath, "path traversal: path is not relative to base")
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", v.rejectResolved(userPath, resolvedPath, "path traversal: resolved path escapes base directory")
	}

	return resolvedPath, nil
}

// resolveExisting resolves symlinks in fullPath, walking up through missing
// ancestors so not-yet-created paths can still be resolved.
func resolveExisting(fullPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(fullPath)
	if err == nil {
		return resolved, nil
	}

	var suffix []string
	current := fullPath
	for i := 0; i < 64; i++ {
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("cannot resolve path: %s", fullPath)
		}
		suffix = append([]string{filepath.Base(current)}, suffix...)
		resolvedParent, parentErr := filepath.EvalSymlinks(parent)
		if parentErr == nil {
			parts := append([]string{resolvedParent}, suffix...)
			return filepath.Join(parts...), nil
		}
		current = parent
	}
	return "", fmt.Errorf("cannot resolve path: %s", fullPath)
}

func (v *PathValidator) reject(userPath, reason string) error {
	atomic.AddUint64(&v.rejections, 1)
	return &ValidationError{
		UserPath:  userPath,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (v *PathValidator) rejectResolved(userPath, resolvedPath, reason string) error {
	atomic.AddUint64(&v.rejections, 1)
	return &ValidationError{
		UserPath:     userPath,
		Reason:       reason,
		ResolvedPath: resolvedPath,
		Timestamp:    time.Now(),
	}
}

// rejectionMessage extracts the reason from a *ValidationError, falling back
// to the full error text for anything else.
func rejectionMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return err.Error()
}

// containsEncodedSeparator reports whether s still carries percent-encoded
// dot or separator sequences after one decoding pass.
func containsEncodedSeparator(s string) bool {
	lower := strings.ToLower(s)
	for _, seq := range []string{"%2e", "%2f", "%5c", "%00"} {
		if strings.Contains(lower, seq) {
			return true
		}
	}
	return false
}

// hasDrivePrefix reports whether the path starts with a Windows drive
// specifier such as "C:".
func hasDrivePrefix(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Stats returns validation statistics for monitoring.
//
// Returns:
//   - validations: total number of validation calls
//   - rejections: number of rejected paths
//
// Thread-safe.
func (v *PathValidator) Stats() (validations, rejections uint64) {
	return atomic.LoadUint64(&v.validations), atomic.LoadUint64(&v.rejections)
}

package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// DefaultBlockedExtensions is the minimum denylist of executable and script
// extensions a write path may not carry. Comparison is case-insensitive.
var DefaultBlockedExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".scr", ".pif",
	".js", ".vbs", ".jar", ".ps1",
}

// reservedDeviceNames are device names rejected in any path component
// regardless of extension. Windows resolves these ahead of the filesystem,
// so they are blocked on every platform to keep verdicts deterministic.
var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// hazardChars are shell and filesystem hazard characters rejected in write
// path components.
const hazardChars = `<>:"|?*`

// SetBlockedExtensions replaces the write-path extension denylist.
//
// Intended for configuration at construction time; not safe to call
// concurrently with validation.
func (v *PathValidator) SetBlockedExtensions(exts []string) {
	m := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m[ext] = true
	}
	v.blockedExtensions = m
}

func (v *PathValidator) extensionBlocked(ext string) bool {
	if v.blockedExtensions == nil {
		for _, blocked := range DefaultBlockedExtensions {
			if ext == blocked {
				return true
			}
		}
		return false
	}
	return v.blockedExtensions[ext]
}

// ValidateWritePath validates that userPath is safe to create or overwrite.
//
// The write target usually does not exist yet, so the checks are lexical on
// top of the shared containment layers:
//
//   - no NUL bytes or other C0 control characters in any component
//   - no shell-hazard characters (< > : " | ? *)
//   - no reserved device names (CON, PRN, AUX, NUL, COM1..9, LPT1..9) in any
//     component, regardless of extension
//   - no denylisted executable/script extension
//   - must be valid UTF-8
//
// Unicode components (Cyrillic, CJK, Arabic, emoji, interior whitespace)
// are allowed; the decision depends only on the bytes of the path, never on
// environment, so repeated calls always agree.
func (v *PathValidator) ValidateWritePath(userPath string) Result {
	atomic.AddUint64(&v.validations, 1)

	if userPath == "" {
		atomic.AddUint64(&v.rejections, 1)
		return Rejected("path cannot be empty")
	}
	if !utf8.ValidString(userPath) {
		atomic.AddUint64(&v.rejections, 1)
		return Rejected("path is not valid UTF-8")
	}
	if err := checkWriteComponents(userPath, v); err != nil {
		atomic.AddUint64(&v.rejections, 1)
		return Rejected(err.Error())
	}

	// Same containment discipline as reads: a write that escapes the base
	// directory is a traversal no matter how clean its components are.
	if _, err := v.resolve(userPath); err != nil {
		return Rejected(rejectionMessage(err))
	}
	return OK()
}

// checkWriteComponents runs the per-component lexical checks.
func checkWriteComponents(userPath string, v *PathValidator) error {
	slashed := strings.ReplaceAll(userPath, `\`, `/`)
	for _, component := range strings.Split(slashed, "/") {
		if component == "" {
			continue
		}
		for _, r := range component {
			if r < 0x20 || r == 0x7f {
				return fmt.Errorf("control character 0x%02x in path component", r)
			}
			if strings.ContainsRune(hazardChars, r) {
				return fmt.Errorf("forbidden character %q in path component", r)
			}
		}

		base := strings.ToUpper(component)
		if idx := strings.Index(base, "."); idx != -1 {
			base = base[:idx]
		}
		if reservedDeviceNames[base] {
			return fmt.Errorf("reserved device name not allowed: %s", component)
		}
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filepath.FromSlash(slashed))))
	if ext != "" && v.extensionBlocked(ext) {
		return fmt.Errorf("file extension not allowed: %s", ext)
	}
	return nil
}

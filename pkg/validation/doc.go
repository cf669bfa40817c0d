// Package validation provides the file-path half of the ioguard validation
// gate: deciding whether a user-supplied path may be used for reading or
// writing before any file handle is opened.
//
// # Security Guarantees
//
// The PathValidator provides defense-in-depth with multiple validation layers:
//
//   - Percent-decoding of encoded traversal sequences before any other check
//   - Lexical validation: rejects absolute paths, ".." components, UNC
//     prefixes, and embedded NUL bytes
//   - Path normalization to canonical form
//   - Symbolic link resolution
//   - Containment verification against the resolved base directory
//   - Size limiting (oversized files rejected before they are read)
//   - Content scanning for embedded NUL bytes on read
//
// Write paths additionally go through character, reserved-device-name, and
// extension denylist checks, since the write target usually does not exist
// yet and cannot be inspected.
//
// These layers work together to prevent:
//
//   - Directory traversal attacks (../../etc/passwd, %2e%2e%2f variants)
//   - Absolute path and UNC path injection (/etc/passwd, \\server\share)
//   - Symbolic link escapes (symlink pointing outside the base directory)
//   - Reserved device name exploitation (CON, PRN, AUX, NUL, COM1..9, LPT1..9)
//   - NUL byte injection in paths and file content
//   - Oversized file denial of service
//   - Dropping executable or script files through a write path
//
// # Usage
//
//	validator, err := validation.NewPathValidator("/var/app/data")
//	if err != nil {
//	    log.Fatalf("Failed to create validator: %v", err)
//	}
//
//	if res := validator.ValidateReadPath(userInput); !res.Valid {
//	    return fmt.Errorf("rejected: %s", res.Message)
//	}
//
// Expected rejections come back as Result values; errors are reserved for
// caller misuse (invalid base directory, nil context).
//
// # Thread Safety
//
// All types in this package are safe for concurrent use by multiple
// goroutines. One hundred concurrent writes to distinct validated paths
// share no mutable state beyond two atomic counters.
package validation

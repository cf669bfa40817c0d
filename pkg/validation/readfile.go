package validation

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// SafeReadFile validates userPath and reads the file content.
//
// The read fails (with an error value, never a panic) if:
//   - path validation fails (traversal, containment, size limit)
//   - the file grows past the size limit between validation and read
//   - the content contains an embedded NUL byte (treated as injection)
//
// The context is honored before the read starts; validation itself is
// CPU-bound and fast.
func (v *PathValidator) SafeReadFile(ctx context.Context, userPath string) ([]byte, error) {
	if ctx == nil {
		return nil, fmt.Errorf("nil context")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	atomic.AddUint64(&v.validations, 1)
	resolved, err := v.resolve(userPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", userPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot read %s: path is a directory", userPath)
	}
	if info.Size() >= v.maxFileSize {
		return nil, fmt.Errorf("cannot read %s: file size %d exceeds maximum allowed size %d",
			userPath, info.Size(), v.maxFileSize)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", userPath, err)
	}
	if int64(len(data)) >= v.maxFileSize {
		return nil, fmt.Errorf("cannot read %s: file size %d exceeds maximum allowed size %d",
			userPath, len(data), v.maxFileSize)
	}
	if idx := bytes.IndexByte(data, 0); idx != -1 {
		return nil, fmt.Errorf("cannot read %s: null byte in file content at offset %d", userPath, idx)
	}
	return data, nil
}

// scanFileForNUL streams the file looking for an embedded NUL byte, without
// holding the whole content in memory.
func scanFileForNUL(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot scan file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	offset := int64(0)
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if idx := bytes.IndexByte(buf[:n], 0); idx != -1 {
				return fmt.Errorf("null byte in file content at offset %d", offset+int64(idx))
			}
			offset += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cannot scan file: %w", err)
		}
	}
}

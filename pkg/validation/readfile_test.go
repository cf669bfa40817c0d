package validation

import (
	"context"
	"strings"
	"testing"
)

func TestSafeReadFile_ReadsValidatedContent(t *testing.T) {
	v, base := newTestValidator(t)
	writeTestFile(t, base, "hello.txt", []byte("hello world"))

	data, err := v.SafeReadFile(context.Background(), "hello.txt")
	if err != nil {
		t.Fatalf("SafeReadFile() error = %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q, want %q", data, "hello world")
	}
}

func TestSafeReadFile_RejectsTraversal(t *testing.T) {
	v, _ := newTestValidator(t)

	_, err := v.SafeReadFile(context.Background(), "../../etc/passwd")
	if err == nil {
		t.Fatal("SafeReadFile() = nil error for traversal, want error")
	}
	if !strings.Contains(err.Error(), "path traversal") {
		t.Errorf("error = %q, want it to mention %q", err.Error(), "path traversal")
	}
}

func TestSafeReadFile_RejectsNullByteContent(t *testing.T) {
	v, base := newTestValidator(t)
	writeTestFile(t, base, "binary.dat", []byte{0x41, 0x00, 0x42})

	_, err := v.SafeReadFile(context.Background(), "binary.dat")
	if err == nil {
		t.Fatal("SafeReadFile() = nil error for NUL content, want error")
	}
	if !strings.Contains(err.Error(), "null byte") {
		t.Errorf("error = %q, want it to mention %q", err.Error(), "null byte")
	}
}

func TestSafeReadFile_RejectsOversized(t *testing.T) {
	base := t.TempDir()
	v, err := NewPathValidatorWithLimits(base, 64, DefaultMaxPathLen)
	if err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, base, "big.dat", make([]byte, 128))

	_, err = v.SafeReadFile(context.Background(), "big.dat")
	if err == nil {
		t.Fatal("SafeReadFile() = nil error for oversized file, want error")
	}
	if !strings.Contains(err.Error(), "size") {
		t.Errorf("error = %q, want it to mention %q", err.Error(), "size")
	}
}

func TestSafeReadFile_MissingFile(t *testing.T) {
	v, _ := newTestValidator(t)
	if _, err := v.SafeReadFile(context.Background(), "does-not-exist.txt"); err == nil {
		t.Fatal("SafeReadFile() = nil error for missing file, want error")
	}
}

func TestSafeReadFile_CancelledContext(t *testing.T) {
	v, base := newTestValidator(t)
	writeTestFile(t, base, "hello.txt", []byte("hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := v.SafeReadFile(ctx, "hello.txt"); err == nil {
		t.Fatal("SafeReadFile() = nil error with cancelled context, want error")
	}
}

func TestSafeReadFile_NilContext(t *testing.T) {
	v, _ := newTestValidator(t)
	//nolint:staticcheck // deliberately passing nil to exercise caller-misuse handling
	if _, err := v.SafeReadFile(nil, "hello.txt"); err == nil {
		t.Fatal("SafeReadFile(nil ctx) = nil error, want error")
	}
}

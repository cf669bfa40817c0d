package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestValidateWritePath_ForbiddenCharacters(t *testing.T) {
	v, _ := newTestValidator(t)

	tests := []struct {
		name string
		path string
	}{
		{"null byte", "file\x00.txt"},
		{"bell control", "file\x07.txt"},
		{"escape control", "file\x1b[31m.txt"},
		{"delete control", "file\x7f.txt"},
		{"less than", "file<.txt"},
		{"greater than", "file>.txt"},
		{"colon", "drive:file.txt"},
		{"quote", `file".txt`},
		{"pipe", "file|.txt"},
		{"question mark", "file?.txt"},
		{"asterisk", "file*.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := v.ValidateWritePath(tt.path); res.Valid {
				t.Errorf("ValidateWritePath(%q) = valid, want rejection", tt.path)
			}
		})
	}
}

func TestValidateWritePath_ReservedDeviceNames(t *testing.T) {
	v, _ := newTestValidator(t)

	tests := []string{
		"CON", "con", "Con.txt", "PRN.log", "AUX", "NUL.dat",
		"COM1", "com5.txt", "LPT1", "lpt9.doc",
		"sub/CON/file.txt", // reserved name as a directory component
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			res := v.ValidateWritePath(path)
			if res.Valid {
				t.Fatalf("ValidateWritePath(%q) = valid, want rejection", path)
			}
			if !strings.Contains(res.Message, "reserved device name") {
				t.Errorf("message = %q, want it to mention %q", res.Message, "reserved device name")
			}
		})
	}
}

func TestValidateWritePath_BlockedExtensions(t *testing.T) {
	v, _ := newTestValidator(t)

	blocked := []string{
		"payload.exe", "script.bat", "run.cmd", "old.com", "saver.scr",
		"shortcut.pif", "inject.js", "macro.vbs", "applet.jar", "admin.ps1",
		"PAYLOAD.EXE", "Admin.Ps1", // case-insensitive
	}
	for _, path := range blocked {
		t.Run(path, func(t *testing.T) {
			res := v.ValidateWritePath(path)
			if res.Valid {
				t.Fatalf("ValidateWritePath(%q) = valid, want rejection", path)
			}
			if !strings.Contains(res.Message, "extension") {
				t.Errorf("message = %q, want it to mention %q", res.Message, "extension")
			}
		})
	}

	allowed := []string{"document.txt", "image.png", "data.json", "notes.md", "no-extension"}
	for _, path := range allowed {
		if res := v.ValidateWritePath(path); !res.Valid {
			t.Errorf("ValidateWritePath(%q) rejected: %s", path, res.Message)
		}
	}
}

func TestValidateWritePath_CustomExtensionDenylist(t *testing.T) {
	v, _ := newTestValidator(t)
	v.SetBlockedExtensions([]string{".dll", "so"})

	if res := v.ValidateWritePath("lib.dll"); res.Valid {
		t.Error("denylisted .dll accepted")
	}
	if res := v.ValidateWritePath("lib.so"); res.Valid {
		t.Error("denylisted .so accepted (extension given without dot)")
	}
	// The default list no longer applies once replaced.
	if res := v.ValidateWritePath("tool.exe"); !res.Valid {
		t.Errorf("ValidateWritePath(tool.exe) rejected after denylist replacement: %s", res.Message)
	}
}

func TestValidateWritePath_Traversal(t *testing.T) {
	v, _ := newTestValidator(t)

	for _, path := range []string{"../escape.txt", "/etc/cron.d/job", "a/../../b.txt"} {
		res := v.ValidateWritePath(path)
		if res.Valid {
			t.Errorf("ValidateWritePath(%q) = valid, want rejection", path)
			continue
		}
		if !strings.Contains(res.Message, "path traversal") {
			t.Errorf("ValidateWritePath(%q) message = %q, want it to mention %q", path, res.Message, "path traversal")
		}
	}
}

func TestValidateWritePath_Unicode(t *testing.T) {
	v, _ := newTestValidator(t)

	allowed := []string{"файл.txt", "音楽.txt", "ملف.txt", "🎵.txt", "with space.txt"}
	for _, path := range allowed {
		first := v.ValidateWritePath(path)
		if !first.Valid {
			t.Errorf("ValidateWritePath(%q) rejected: %s", path, first.Message)
		}
		for i := 0; i < 5; i++ {
			if got := v.ValidateWritePath(path); got.Valid != first.Valid {
				t.Fatalf("ValidateWritePath(%q) flaked", path)
			}
		}
	}

	if res := v.ValidateWritePath("bad\xff\xfe.txt"); res.Valid {
		t.Error("invalid UTF-8 path accepted, want rejection")
	}
}

// One hundred concurrent writers against distinct validated paths must not
// corrupt validator state or interfere with each other.
func TestValidateWritePath_ConcurrentWrites(t *testing.T) {
	v, base := newTestValidator(t)

	const writers = 100
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent-%d.txt", n)
			res := v.ValidateWritePath(name)
			if !res.Valid {
				errs <- fmt.Errorf("ValidateWritePath(%q) rejected: %s", name, res.Message)
				return
			}
			if err := os.WriteFile(filepath.Join(base, name), []byte(name), 0644); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != writers {
		t.Errorf("wrote %d files, want %d", len(entries), writers)
	}

	validations, _ := v.Stats()
	if validations != writers {
		t.Errorf("validations = %d, want %d", validations, writers)
	}
}

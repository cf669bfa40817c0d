package serialization

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// hostileContentPatterns are substrings that mark a payload as carrying an
// injection attempt. Matching is case-insensitive.
var hostileContentPatterns = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"{{constructor",
	"{{#with",
	"${jndi:",
	"../",
	"..\\",
	"%2e%2e",
}

// ScanContent flags injection patterns and embedded NUL bytes in a raw
// payload. When the payload is valid JSON every string value is scanned
// individually after unescaping, so \u-escaped payloads cannot hide.
func (g *Guard) ScanContent(data []byte) error {
	atomic.AddUint64(&g.validations, 1)
	if err := scan(data); err != nil {
		atomic.AddUint64(&g.rejections, 1)
		return err
	}
	return nil
}

func scan(data []byte) error {
	if idx := bytes.IndexByte(data, 0); idx != -1 {
		return fmt.Errorf("%w: embedded null byte at offset %d", ErrHostileContent, idx)
	}

	lower := strings.ToLower(string(data))
	for _, pattern := range hostileContentPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: pattern %q found", ErrHostileContent, pattern)
		}
	}

	// Escaped sequences inside JSON strings only show up after unescaping.
	if gjson.ValidBytes(data) {
		if err := scanJSONStrings(gjson.ParseBytes(data)); err != nil {
			return err
		}
	}
	return nil
}

// scanJSONStrings walks every string value in a parsed JSON document.
func scanJSONStrings(value gjson.Result) error {
	var failed error
	switch value.Type {
	case gjson.String:
		lower := strings.ToLower(value.String())
		if strings.ContainsRune(lower, 0) {
			return fmt.Errorf("%w: null byte inside JSON string value", ErrHostileContent)
		}
		for _, pattern := range hostileContentPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Errorf("%w: pattern %q inside JSON string value", ErrHostileContent, pattern)
			}
		}
	case gjson.JSON:
		// Object keys are attacker-controlled strings too.
		value.ForEach(func(key, child gjson.Result) bool {
			if err := scanJSONStrings(key); err != nil {
				failed = err
				return false
			}
			if err := scanJSONStrings(child); err != nil {
				failed = err
				return false
			}
			return true
		})
	}
	return failed
}

// ValidateJSON runs the full pre-flight for a JSON payload: size, content
// scan, and (when schema is non-empty) a JSON Schema check.
func (g *Guard) ValidateJSON(data []byte, schema []byte) error {
	if err := g.CheckSize(data); err != nil {
		return err
	}
	if err := g.ScanContent(data); err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		atomic.AddUint64(&g.rejections, 1)
		return fmt.Errorf("%w: payload is not valid JSON", ErrSchemaViolation)
	}
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		atomic.AddUint64(&g.rejections, 1)
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(reasons, "; "))
	}
	return nil
}

package serialization

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// ValidateXML rejects XML documents that declare entities before any
// deserialization happens.
//
// Every `<!ENTITY` declaration is rejected, internal, external, and
// parameter alike, as is any DOCTYPE with a SYSTEM or PUBLIC identifier.
// The token walk then confirms the document is well-formed with entity
// resolution disabled, so declared entity content can never surface in a
// decoded result. External DTDs are never fetched.
func (g *Guard) ValidateXML(data []byte) error {
	atomic.AddUint64(&g.validations, 1)
	if err := checkXML(data); err != nil {
		atomic.AddUint64(&g.rejections, 1)
		return err
	}
	return nil
}

func checkXML(data []byte) error {
	lower := strings.ToLower(string(data))
	if strings.Contains(lower, "<!entity") {
		return fmt.Errorf("%w: document declares an entity", ErrEntityDeclaration)
	}
	if idx := strings.Index(lower, "<!doctype"); idx != -1 {
		doctype := lower[idx:]
		if end := strings.IndexByte(doctype, '>'); end != -1 && !strings.Contains(doctype[:end], "[") {
			doctype = doctype[:end]
		}
		if strings.Contains(doctype, "system") || strings.Contains(doctype, "public") {
			return fmt.Errorf("%w: DOCTYPE carries an external identifier", ErrEntityDeclaration)
		}
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.Entity = map[string]string{} // predefined XML entities only
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed XML: %w", err)
		}
		if dir, ok := tok.(xml.Directive); ok {
			d := strings.ToLower(string(dir))
			if strings.Contains(d, "entity") {
				return fmt.Errorf("%w: document declares an entity", ErrEntityDeclaration)
			}
		}
	}
}

// DecodeXML runs the full pre-flight (size, content scan, entity checks)
// and then decodes the document into v with entity resolution disabled.
func (g *Guard) DecodeXML(data []byte, v interface{}) error {
	if err := g.CheckSize(data); err != nil {
		return err
	}
	if err := g.ScanContent(data); err != nil {
		return err
	}
	if err := g.ValidateXML(data); err != nil {
		return err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.Entity = map[string]string{}
	if err := dec.Decode(v); err != nil {
		atomic.AddUint64(&g.rejections, 1)
		return fmt.Errorf("malformed XML: %w", err)
	}
	return nil
}

package parsedoc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed indicates the document had no usable root container. It is
// the only structural failure parsing can surface; everything recoverable is
// absorbed into the tree shape instead.
var ErrMalformed = errors.New("parsedoc: malformed document")

// ParseXML reads an XML document into the generic tree model. Element and
// attribute names are lower-cased, attributes are merged into the element's
// mapping, repeated sibling elements collapse into sequences, and elements
// holding only character data become scalars. The result is a mapping with a
// single key: the root element name.
func ParseXML(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no root element", ErrMalformed)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		child, err := parseElement(dec, start)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		root := Mapping()
		root.Set(elementName(start.Name), child)
		return root, nil
	}
}

// elementName preserves undeclared namespace prefixes the way downstream
// fallback chains expect ("pd:prpricelvlpd"), lower-cased. Declared
// namespaces resolve to their URI and are dropped instead of prefixed.
func elementName(name xml.Name) string {
	if name.Space != "" && !strings.ContainsAny(name.Space, ":/") {
		return strings.ToLower(name.Space + ":" + name.Local)
	}
	return strings.ToLower(name.Local)
}

func parseElement(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	node := Mapping()
	for _, attr := range start.Attr {
		if attr.Name.Local == "xmlns" || attr.Name.Space == "xmlns" {
			continue
		}
		node.Set(elementName(attr.Name), Scalar(attr.Value))
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			node.Set(elementName(t.Name), child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			trimmed := strings.TrimSpace(text.String())
			if len(node.keys) == 0 {
				return Scalar(trimmed), nil
			}
			node.SetText(trimmed)
			return node, nil
		}
	}
}

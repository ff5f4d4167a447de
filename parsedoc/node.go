package parsedoc

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the three shapes a parsed document node can take.
type Kind int

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
)

// Node is the format-independent result of parsing an input document: a
// scalar string, an ordered sequence of nodes, or a mapping from lower-cased
// key to node. Mapping nodes may additionally carry captured text when the
// source element mixed attributes or children with character data.
//
// All accessors are nil-safe: calling them on a nil *Node yields the zero
// result, so callers can chain lookups without guarding every step.
type Node struct {
	kind   Kind
	text   string
	items  []*Node
	keys   []string
	fields map[string]*Node
}

// Scalar builds a scalar node holding the given text.
func Scalar(text string) *Node {
	return &Node{kind: KindScalar, text: text}
}

// Sequence builds a sequence node from the given items.
func Sequence(items ...*Node) *Node {
	return &Node{kind: KindSequence, items: items}
}

// Mapping builds an empty mapping node.
func Mapping() *Node {
	return &Node{kind: KindMapping, fields: make(map[string]*Node)}
}

// Kind reports the node's shape. A nil node reports KindScalar.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindScalar
	}
	return n.kind
}

// Set attaches a child under key. Setting the same key twice promotes the
// existing child to a sequence and appends, matching how repeated elements
// in the source document collapse into lists.
func (n *Node) Set(key string, child *Node) {
	key = strings.ToLower(key)
	if existing, ok := n.fields[key]; ok {
		if existing.kind == KindSequence {
			existing.items = append(existing.items, child)
			return
		}
		n.fields[key] = Sequence(existing, child)
		return
	}
	n.keys = append(n.keys, key)
	n.fields[key] = child
}

// SetText records captured character data on a mapping node.
func (n *Node) SetText(text string) {
	n.text = text
}

// Keys returns the mapping keys in document order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	return n.keys
}

// Items returns the elements of a sequence node.
func (n *Node) Items() []*Node {
	if n == nil {
		return nil
	}
	return n.items
}

// Lookup walks a dot-separated path of mapping keys and returns the node at
// the end, or nil when any step is absent. The empty path names the node
// itself.
func (n *Node) Lookup(path string) *Node {
	if path == "" {
		return n
	}
	cur := n
	for _, part := range strings.Split(path, ".") {
		if cur == nil || cur.kind != KindMapping {
			return nil
		}
		cur = cur.fields[strings.ToLower(part)]
	}
	return cur
}

// First returns the node at the first present path. The precedence list is
// the caller's explicit fallback chain: earlier paths win.
func (n *Node) First(paths ...string) *Node {
	for _, p := range paths {
		if found := n.Lookup(p); found != nil {
			return found
		}
	}
	return nil
}

// Has reports whether a path is present at all. Presence alone is meaningful
// for flag sub-nodes whose content is irrelevant.
func (n *Node) Has(path string) bool {
	return n.Lookup(path) != nil
}

// Each returns the node at path as a slice: a sequence yields its items, any
// other present node yields itself, an absent path yields nil.
func (n *Node) Each(path string) []*Node {
	found := n.Lookup(path)
	if found == nil {
		return nil
	}
	if found.kind == KindSequence {
		return found.items
	}
	return []*Node{found}
}

// Text returns the node's own text, trimmed. For mapping nodes this is the
// captured character data.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text)
}

// Str returns the trimmed text at the first present path.
func (n *Node) Str(paths ...string) string {
	return n.First(paths...).Text()
}

// Int parses the text at the first present path as an integer. Unparsable or
// absent values yield (0, false) rather than an error.
func (n *Node) Int(paths ...string) (int64, bool) {
	raw := n.Str(paths...)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Tolerate values like "3.0" that some vendors emit for counts.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return 0, false
		}
		return int64(f), true
	}
	return v, true
}

// Float parses the text at the first present path as a float.
func (n *Node) Float(paths ...string) (float64, bool) {
	raw := n.Str(paths...)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Decimal parses the text at the first present path as a fixed-point value.
// Currency symbols and thousands separators are stripped first. Absent or
// unparsable values yield an invalid NullDecimal.
func (n *Node) Decimal(paths ...string) decimal.NullDecimal {
	raw := n.Str(paths...)
	return ParseDecimal(raw)
}

// Time parses the text at the first present path against the accepted
// timestamp layouts.
func (n *Node) Time(paths ...string) (time.Time, bool) {
	raw := n.Str(paths...)
	return ParseTime(raw)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseTime tries each accepted layout in order.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDecimal converts a currency-ish string to a NullDecimal.
func ParseDecimal(raw string) decimal.NullDecimal {
	raw = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(raw))
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// IntPtr is a convenience wrapper returning a pointer for nullable columns.
func (n *Node) IntPtr(paths ...string) *int64 {
	if v, ok := n.Int(paths...); ok {
		return &v
	}
	return nil
}

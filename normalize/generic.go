package normalize

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"posfeed/parsedoc"
	"posfeed/refdata"
)

// EntityTag labels the coarse entity class a scanned node matched.
type EntityTag string

const (
	TagStore      EntityTag = "store"
	TagDepartment EntityTag = "department"
	TagProduct    EntityTag = "product"
	TagPromotion  EntityTag = "promotion"
	TagRebate     EntityTag = "rebate"
	TagLoyalty    EntityTag = "loyalty"
)

// Matcher pairs a keyword group with the entity tag it emits. Matching is
// case-insensitive substring over the node key, so "department_description"
// matches the department group; recall over precision is the point.
type Matcher struct {
	Tag      EntityTag
	Keywords []string
}

// DefaultMatchers returns the ordered keyword groups the generic scanner
// tests every node key against.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{TagStore, []string{"store", "storeid", "store_id", "location", "site"}},
		{TagDepartment, []string{"department", "dept", "category", "section"}},
		{TagProduct, []string{"product", "item", "upc", "sku", "plu"}},
		{TagPromotion, []string{"promotion", "promo", "discount", "offer"}},
		{TagRebate, []string{"rebate", "cashback", "refund"}},
		{TagLoyalty, []string{"loyalty", "reward", "member"}},
	}
}

// match is one scanned hit: the node that matched and where it was found.
type match struct {
	tag  EntityTag
	node *parsedoc.Node
	path string
}

// GenericNormalizer is the fallback for unrecognised record kinds. It
// recursively scans every node of the tree for keyword-matched names and
// emits coarse writes for whatever reference data it can identify. It is
// deliberately imprecise and must never be preferred over a strict
// per-kind normalizer.
type GenericNormalizer struct {
	Resolver *refdata.Resolver
	Matchers []Matcher
	Log      *slog.Logger
	Now      func() time.Time

	// FileKind is the unrecognised kind label, passed through for
	// diagnostics and provenance.
	FileKind string
}

// NewGenericNormalizer wires a generic normalizer for the given kind label.
func NewGenericNormalizer(resolver *refdata.Resolver, log *slog.Logger, fileKind string) *GenericNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &GenericNormalizer{
		Resolver: resolver,
		Matchers: DefaultMatchers(),
		Log:      log,
		Now:      time.Now,
		FileKind: fileKind,
	}
}

func (n *GenericNormalizer) Kind() string { return n.FileKind }

// Process scans the whole tree, then applies each match in its own
// transaction so a single bad node cannot poison the rest.
func (n *GenericNormalizer) Process(ctx context.Context, db *gorm.DB, doc *parsedoc.Node) (Result, error) {
	res := Result{Kind: n.FileKind}
	matches := n.scan(doc, "")
	n.Log.Info("generic scan", "kind", n.FileKind, "matches", len(matches))

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m := m
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return n.apply(tx, m)
		})
		if err != nil {
			n.Log.Error("generic entry failed", "tag", m.tag, "path", m.path, "err", err)
			res.Errors++
			continue
		}
		res.Processed++
	}
	return res, nil
}

// scan visits every mapping entry and sequence element, testing each key
// against every matcher.
func (n *GenericNormalizer) scan(node *parsedoc.Node, prefix string) []match {
	var out []match
	switch node.Kind() {
	case parsedoc.KindMapping:
		for _, key := range node.Keys() {
			child := node.Lookup(key)
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			lowered := strings.ToLower(key)
			for _, matcher := range n.Matchers {
				if containsAnyKeyword(lowered, matcher.Keywords) {
					out = append(out, match{tag: matcher.Tag, node: child, path: path})
				}
			}
			out = append(out, n.scan(child, path)...)
		}
	case parsedoc.KindSequence:
		for _, item := range node.Items() {
			out = append(out, n.scan(item, prefix)...)
		}
	}
	return out
}

// apply turns one coarse match into a reference-data write. Scalar matches
// carry only an identifier; mapping matches may seed names and prices.
func (n *GenericNormalizer) apply(tx *gorm.DB, m match) error {
	switch m.tag {
	case TagStore:
		storeID := scalarOr(m.node, "id", "storeid", "store_id")
		if storeID == "" {
			return nil
		}
		_, err := n.Resolver.Store(tx, storeID, refdata.StoreSeed{Name: m.node.Str("name", "storename")})
		return err

	case TagDepartment:
		deptID, ok := scalarIntOr(m.node, "id", "departmentid", "department_id")
		if !ok {
			return nil
		}
		_, err := n.Resolver.Department(tx, deptID,
			m.node.Str("name", "department_name"),
			m.node.Str("type", "department_type"))
		return err

	case TagProduct:
		upc, ok := scalarIntOr(m.node, "id", "upc", "upc_id")
		if !ok {
			return nil
		}
		_, _, err := n.Resolver.Product(tx, upc, refdata.ProductSeed{
			Description: m.node.Str("description", "name"),
			Cost:        m.node.Decimal("cost"),
			RetailPrice: m.node.Decimal("price", "retail_price"),
			Source:      n.FileKind,
		})
		return err

	case TagPromotion:
		promoID, ok := scalarIntOr(m.node, "id", "promotionid", "promotion_id")
		if !ok {
			return nil
		}
		name := m.node.Str("name")
		return ensurePromotionProgram(tx, promoID, name, m.node.Str("description"), m.node.Decimal("amount"), n.Now())

	case TagRebate:
		rebateID, ok := scalarIntOr(m.node, "id", "rebateid", "rebate_id")
		if !ok {
			return nil
		}
		return ensureRebateProgram(tx, rebateID,
			m.node.Str("name"), m.node.Str("type"),
			m.node.Decimal("amount"), m.node.Decimal("percentage"), n.Now())

	case TagLoyalty:
		// Loyalty rows belong to transactions; a bare master feed gives
		// nothing durable to attach them to.
		n.Log.Info("loyalty data found", "kind", n.FileKind, "path", m.path)
		return nil
	}
	return nil
}

// scalarOr reads an identifier from a scalar node's own text, or from the
// first present key of a mapping node.
func scalarOr(node *parsedoc.Node, paths ...string) string {
	if node.Kind() == parsedoc.KindScalar {
		return node.Text()
	}
	return node.Str(paths...)
}

func scalarIntOr(node *parsedoc.Node, paths ...string) (int64, bool) {
	if node.Kind() == parsedoc.KindScalar {
		return node.Int("")
	}
	return node.Int(paths...)
}

func containsAnyKeyword(key string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// Package differ compares two resolvers' results for the same fuzz case
// and reports where they diverge (spec §4.4). Diffing is data-driven: a
// fixed-order table of category checks runs over a normalized projection
// of each harness.Result, so the same inputs always produce the same
// ordered output regardless of which resolver is passed first.
package differ

// Category names one kind of divergence a rule recognizes.
type Category string

const (
	// CategoryResolverName is always the first item in a Diff, grouping
	// the rest by which pair of resolvers produced them.
	CategoryResolverName Category = "ResolverName"

	// CategoryDnsId marks a header.id mismatch as retained-but-non-meaningful.
	CategoryDnsId Category = "DnsId"

	CategoryErrorClientNoRrInAnswer   Category = "ErrorClientNoRrInAnswer"
	CategoryResolvedServFailOnNoData  Category = "ResolvedServFailOnNoData"
	CategoryRrsetOrder                Category = "RrsetOrder"
	CategoryNoEdnsSupport              Category = "NoEdnsSupport"
	CategoryTrailingRetransmissions    Category = "TrailingRetransmissions"
	CategoryStructuralDifference       Category = "StructuralDifference"
)

// DiffItem is one divergence: a dotted path into the FuzzResult
// projection, the two resolvers' values at that path, and the category
// it was recognized under (spec §4.4).
type DiffItem struct {
	Path     string
	ValueA   string
	ValueB   string
	Category Category
}

package tariff

import (
	"context"

	"github.com/sells-group/tariffwatch/internal/hscode"
)

// Row is one rate record from a backing data source. Country may be empty
// for sources that do not carry it; the engine fills the default.
type Row struct {
	HSCode    string
	MFNRate   float64
	USMCARate float64
	Country   string
}

// Source is the backing-data access used by the resolution cascade.
// Implementations return (nil, nil) for "no matching record"; errors are
// reserved for data-access failures, which the engine treats as no match.
type Source interface {
	// Direct looks up the exact compact code in the primary
	// classification table.
	Direct(ctx context.Context, code string) (*Row, error)

	// Treaty queries the treaty rate table with an OR-match across the
	// dotted 8-digit encoding and the 6-digit subheading prefix. Rows with
	// a zero MFN rate are not countable answers (zero is indistinguishable
	// from "no data" in that table) and must not be returned.
	Treaty(ctx context.Context, dotted, subheading string) (*Row, error)

	// BestByPrefix returns the best record whose code starts with the
	// prefix, across both the primary and the treaty table, requiring
	// MFNRate > 0. Ties break deterministically: highest MFN rate first,
	// then lexicographic hs_code ascending.
	BestByPrefix(ctx context.Context, prefix string) (*Row, error)

	// BestByChapter returns the best treaty-table record in the 2-digit
	// chapter with MFNRate > minRate, with the same tie-break.
	BestByChapter(ctx context.Context, chapter string, minRate float64) (*Row, error)
}

// betterRow picks the deterministic winner between two candidate rows:
// highest MFN rate first, then lexicographic compact code ascending. This
// ordering is what keeps resolution stable across read replicas that may
// return rows in different physical order.
func betterRow(a, b *Row) *Row {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.MFNRate != b.MFNRate {
		if a.MFNRate > b.MFNRate {
			return a
		}
		return b
	}
	// The primary table stores compact codes and the treaty table dotted
	// ones, so comparing raw strings would order by punctuation. Compare
	// the digit forms instead.
	if hscode.Normalize(a.HSCode) <= hscode.Normalize(b.HSCode) {
		return a
	}
	return b
}

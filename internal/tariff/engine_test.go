package tariff

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariffwatch/internal/model"
)

// mockSource counts calls and dispatches to per-method stubs. Nil stubs
// mean "no matching record".
type mockSource struct {
	calls int

	direct  func(code string) (*Row, error)
	treaty  func(dotted, subheading string) (*Row, error)
	prefix  func(prefix string) (*Row, error)
	chapter func(chapter string, minRate float64) (*Row, error)
}

func (m *mockSource) Direct(_ context.Context, code string) (*Row, error) {
	m.calls++
	if m.direct == nil {
		return nil, nil
	}
	return m.direct(code)
}

func (m *mockSource) Treaty(_ context.Context, dotted, subheading string) (*Row, error) {
	m.calls++
	if m.treaty == nil {
		return nil, nil
	}
	return m.treaty(dotted, subheading)
}

func (m *mockSource) BestByPrefix(_ context.Context, prefix string) (*Row, error) {
	m.calls++
	if m.prefix == nil {
		return nil, nil
	}
	return m.prefix(prefix)
}

func (m *mockSource) BestByChapter(_ context.Context, chapter string, minRate float64) (*Row, error) {
	m.calls++
	if m.chapter == nil {
		return nil, nil
	}
	return m.chapter(chapter, minRate)
}

func newTestEngine(src Source) *Engine {
	return NewEngine(src, NewCache(0), "US")
}

func TestResolve_DirectRecordWins(t *testing.T) {
	src := &mockSource{
		direct: func(code string) (*Row, error) {
			return &Row{HSCode: code, MFNRate: 25, USMCARate: 0}, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "8542.31.00")

	assert.Equal(t, model.SourceDirect, got.Source)
	assert.Equal(t, "85423100", got.HSCode)
	assert.Equal(t, 25.0, got.MFNRate)
	assert.Equal(t, 25.0, got.SavingsPercent)
}

func TestResolve_DirectZeroRateReturnedVerbatim(t *testing.T) {
	// A present primary record is authoritative even when duty-free.
	src := &mockSource{
		direct: func(code string) (*Row, error) {
			return &Row{HSCode: code, MFNRate: 0, USMCARate: 0}, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, model.SourceDirect, got.Source)
	assert.Equal(t, 0.0, got.MFNRate)
}

func TestResolve_TreatyEncodings(t *testing.T) {
	var gotDotted, gotSub string
	src := &mockSource{
		treaty: func(dotted, subheading string) (*Row, error) {
			gotDotted, gotSub = dotted, subheading
			return &Row{HSCode: dotted, MFNRate: 10, USMCARate: 2, Country: "MX"}, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, "8542.31.00", gotDotted)
	assert.Equal(t, "854231", gotSub)
	assert.Equal(t, model.SourceTreaty, got.Source)
	assert.Equal(t, "MX", got.Country)
	assert.Equal(t, 8.0, got.SavingsPercent)
}

func TestResolve_TreatyZeroMFNIsNotAnAnswer(t *testing.T) {
	src := &mockSource{
		treaty: func(dotted, subheading string) (*Row, error) {
			return &Row{HSCode: dotted, MFNRate: 0}, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")
	assert.Equal(t, model.SourceDefaultFallback, got.Source)
}

func TestResolve_Scenario6DigitPrefix(t *testing.T) {
	// No direct or treaty record, but a 6-digit-prefix record exists.
	src := &mockSource{
		prefix: func(prefix string) (*Row, error) {
			if prefix == "854231" {
				return &Row{HSCode: "85423190", MFNRate: 15, USMCARate: 0}, nil
			}
			return nil, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, model.TariffRate{
		HSCode:         "85423100",
		MFNRate:        15,
		USMCARate:      0,
		SavingsPercent: 15,
		Country:        "US",
		Source:         model.SourceProgressive6,
	}, got)
}

func TestResolve_StrategyOrdering6Beats4(t *testing.T) {
	src := &mockSource{
		prefix: func(prefix string) (*Row, error) {
			switch prefix {
			case "854231":
				return &Row{HSCode: "85423110", MFNRate: 7}, nil
			case "8542":
				return &Row{HSCode: "85420000", MFNRate: 99}, nil
			}
			return nil, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, model.SourceProgressive6, got.Source)
	assert.Equal(t, 7.0, got.MFNRate)
}

func TestResolve_ProgressiveFallsThrough642(t *testing.T) {
	var asked []string
	src := &mockSource{
		prefix: func(prefix string) (*Row, error) {
			asked = append(asked, prefix)
			if prefix == "85" {
				return &Row{HSCode: "85010000", MFNRate: 3}, nil
			}
			return nil, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, []string{"854231", "8542", "85"}, asked)
	assert.Equal(t, model.SourceProgressive2, got.Source)
}

func TestResolve_ChapterSimilarityFallback(t *testing.T) {
	src := &mockSource{
		chapter: func(chapter string, minRate float64) (*Row, error) {
			assert.Equal(t, "85", chapter)
			assert.Equal(t, 5.0, minRate)
			return &Row{HSCode: "8501.10.00", MFNRate: 12, Country: "CN"}, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, model.SourceChapterFallback, got.Source)
	assert.Equal(t, 12.0, got.MFNRate)
	assert.Equal(t, "CN", got.Country)
}

func TestResolve_DefaultFallback(t *testing.T) {
	src := &mockSource{}
	got := newTestEngine(src).Resolve(context.Background(), "99999999")

	assert.Equal(t, model.TariffRate{
		HSCode:  "99999999",
		Country: "US",
		Source:  model.SourceDefaultFallback,
	}, got)
}

func TestResolve_StrategyErrorsAreSwallowed(t *testing.T) {
	src := &mockSource{
		direct: func(code string) (*Row, error) {
			return nil, errors.New("connection refused")
		},
		treaty: func(dotted, subheading string) (*Row, error) {
			return nil, errors.New("timeout")
		},
		prefix: func(prefix string) (*Row, error) {
			if prefix == "854231" {
				return &Row{HSCode: "85423110", MFNRate: 9}, nil
			}
			return nil, nil
		},
	}
	got := newTestEngine(src).Resolve(context.Background(), "85423100")

	assert.Equal(t, model.SourceProgressive6, got.Source)
	assert.Equal(t, 9.0, got.MFNRate)
}

func TestResolve_MalformedInputErrorFallback(t *testing.T) {
	e := newTestEngine(&mockSource{})
	got := e.Resolve(context.Background(), "not a code")

	assert.Equal(t, model.SourceErrorFallback, got.Source)
	assert.Equal(t, 0.0, got.MFNRate)
	assert.Equal(t, 0, e.cache.Len())
}

func TestResolve_Determinism(t *testing.T) {
	build := func() *Engine {
		return newTestEngine(&mockSource{
			prefix: func(prefix string) (*Row, error) {
				if prefix == "854231" {
					return &Row{HSCode: "85423150", MFNRate: 15}, nil
				}
				return nil, nil
			},
		})
	}

	cold := build().Resolve(context.Background(), "8542.31.00")
	warmEngine := build()
	warmEngine.Resolve(context.Background(), "8542.31.00")
	warm := warmEngine.Resolve(context.Background(), "8542.31.00")

	assert.Equal(t, cold, warm)
}

func TestResolve_CacheIdempotence(t *testing.T) {
	src := &mockSource{
		direct: func(code string) (*Row, error) {
			return &Row{HSCode: code, MFNRate: 5}, nil
		},
	}
	e := newTestEngine(src)

	first := e.Resolve(context.Background(), "85423100")
	callsAfterFirst := src.calls
	require.Positive(t, callsAfterFirst)

	// Warm hit performs zero backing-data calls, including for dotted
	// re-encodings of the same code.
	second := e.Resolve(context.Background(), "8542.31.00")
	assert.Equal(t, callsAfterFirst, src.calls)
	assert.Equal(t, first, second)
}

func TestResolve_FallbackIsCachedToo(t *testing.T) {
	src := &mockSource{}
	e := newTestEngine(src)

	e.Resolve(context.Background(), "99999999")
	callsAfterFirst := src.calls

	e.Resolve(context.Background(), "99999999")
	assert.Equal(t, callsAfterFirst, src.calls)
	assert.Equal(t, 1, e.cache.Len())
}

func TestResolve_CacheKeyedByOriginalCode(t *testing.T) {
	// The cache key is the queried code, not the prefix that matched.
	src := &mockSource{
		prefix: func(prefix string) (*Row, error) {
			if prefix == "854231" {
				return &Row{HSCode: "85423190", MFNRate: 15}, nil
			}
			return nil, nil
		},
	}
	e := newTestEngine(src)
	e.Resolve(context.Background(), "85423100")

	_, ok := e.cache.Get("85423100")
	assert.True(t, ok)
	_, ok = e.cache.Get("854231")
	assert.False(t, ok)
	_, ok = e.cache.Get("85423190")
	assert.False(t, ok)
}

func TestNewEngine_DefaultCountry(t *testing.T) {
	// An unset country falls back to the same default the config layer
	// uses, so both paths agree.
	e := NewEngine(&mockSource{}, NewCache(0), "")
	assert.Equal(t, DefaultCountry, e.country)
	assert.Equal(t, "CN", e.country)
}

func TestBetterRow_TieBreak(t *testing.T) {
	a := &Row{HSCode: "85423110", MFNRate: 15}
	b := &Row{HSCode: "85423105", MFNRate: 15}

	// Equal rates: lexicographically smaller code wins, regardless of
	// argument order.
	assert.Equal(t, b, betterRow(a, b))
	assert.Equal(t, b, betterRow(b, a))

	// Higher rate wins outright.
	c := &Row{HSCode: "85423199", MFNRate: 20}
	assert.Equal(t, c, betterRow(c, b))
	assert.Equal(t, c, betterRow(b, c))

	// Mixed encodings compare on digits, not punctuation: a compact
	// primary-table code must not lose to a dotted treaty code just
	// because '.' sorts before '0'.
	compact := &Row{HSCode: "85423100", MFNRate: 15}
	dotted := &Row{HSCode: "8542.31.05", MFNRate: 15}
	assert.Equal(t, compact, betterRow(compact, dotted))
	assert.Equal(t, compact, betterRow(dotted, compact))

	assert.Equal(t, a, betterRow(a, nil))
	assert.Equal(t, a, betterRow(nil, a))
	assert.Nil(t, betterRow(nil, nil))
}

func TestResolve_ShortCodeSkipsLongerPrefixes(t *testing.T) {
	var asked []string
	src := &mockSource{
		prefix: func(prefix string) (*Row, error) {
			asked = append(asked, prefix)
			return nil, nil
		},
	}
	newTestEngine(src).Resolve(context.Background(), "8542")

	for _, p := range asked {
		assert.LessOrEqual(t, len(p), 4, "prefix %q longer than the input", p)
	}
	assert.True(t, strings.HasPrefix(asked[0], "8542"))
}

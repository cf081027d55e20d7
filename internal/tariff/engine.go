// Package tariff resolves duty rates for HS classification codes through
// an ordered cascade of data-quality strategies with memoization.
package tariff

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/hscode"
	"github.com/sells-group/tariffwatch/internal/model"
)

// chapterMinRate is the floor for the chapter-similarity fallback: a rate
// this low is indistinguishable from noise, so only "meaningful" rates count.
const chapterMinRate = 5.0

// strategy is one step of the cascade. It returns nil when it has no
// countable answer for the code.
type strategy struct {
	name    string
	resolve func(ctx context.Context, code string) (*model.TariffRate, error)
}

// Engine resolves classification codes to tariff rate records. Resolve
// never returns an error: total resolution failure yields the zero-rate
// fallback record.
type Engine struct {
	source     Source
	cache      *Cache
	country    string
	strategies []strategy
}

// DefaultCountry is the origin country assumed when none is configured.
// Policy changes under watch overwhelmingly concern imports from China.
const DefaultCountry = "CN"

// NewEngine creates a resolution engine over a backing source with an
// explicitly injected cache.
func NewEngine(source Source, cache *Cache, country string) *Engine {
	if country == "" {
		country = DefaultCountry
	}
	e := &Engine{source: source, cache: cache, country: country}
	e.strategies = []strategy{
		{name: model.SourceDirect, resolve: e.direct},
		{name: model.SourceTreaty, resolve: e.treaty},
		{name: model.SourceProgressive6, resolve: e.progressive(6, model.SourceProgressive6)},
		{name: model.SourceProgressive4, resolve: e.progressive(4, model.SourceProgressive4)},
		{name: model.SourceProgressive2, resolve: e.progressive(2, model.SourceProgressive2)},
		{name: model.SourceChapterFallback, resolve: e.chapterSimilarity},
	}
	return e
}

// Resolve returns the rate record for a code, consulting the cache first
// and otherwise walking the strategy cascade in order, short-circuiting on
// the first countable answer. Every outcome, including the terminal
// default, is cached under the canonical form of the original input.
func (e *Engine) Resolve(ctx context.Context, code string) model.TariffRate {
	norm := hscode.Normalize(code)
	if len(norm) < 2 {
		// Not a classification code at all. The error fallback is the one
		// outcome deliberately kept out of the cache.
		zap.L().Warn("tariff: unresolvable input",
			zap.String("code", code),
		)
		return model.NewTariffRate(norm, 0, 0, e.country, model.SourceErrorFallback)
	}

	if rate, ok := e.cache.Get(norm); ok {
		return rate
	}

	for _, s := range e.strategies {
		rate, err := s.resolve(ctx, norm)
		if err != nil {
			// A data-source failure in one strategy is treated as "no
			// match" so the cascade can continue.
			zap.L().Warn("tariff: strategy failed",
				zap.String("strategy", s.name),
				zap.String("code", norm),
				zap.Error(err),
			)
			continue
		}
		if rate != nil {
			e.cache.Set(norm, *rate)
			return *rate
		}
	}

	fallback := model.NewTariffRate(norm, 0, 0, e.country, model.SourceDefaultFallback)
	e.cache.Set(norm, fallback)
	return fallback
}

// direct is strategy 1: exact lookup of the full code against the primary
// classification table. A present record returns its stored rates
// verbatim, zero or not.
func (e *Engine) direct(ctx context.Context, code string) (*model.TariffRate, error) {
	row, err := e.source.Direct(ctx, code)
	if err != nil || row == nil {
		return nil, err
	}
	return e.record(row, code, model.SourceDirect), nil
}

// treaty is strategy 2: OR-match of the dotted 8-digit encoding and the
// 6-digit subheading against the treaty table, requiring MFN > 0.
func (e *Engine) treaty(ctx context.Context, code string) (*model.TariffRate, error) {
	row, err := e.source.Treaty(ctx, hscode.Dotted(code), hscode.Subheading(code))
	if err != nil || row == nil {
		return nil, err
	}
	if row.MFNRate <= 0 {
		return nil, nil
	}
	return e.record(row, code, model.SourceTreaty), nil
}

// progressive builds strategy 3 for one prefix length: truncate the code
// and take the deterministic best match across both backing tables.
func (e *Engine) progressive(length int, tag string) func(ctx context.Context, code string) (*model.TariffRate, error) {
	return func(ctx context.Context, code string) (*model.TariffRate, error) {
		if len(code) < length {
			return nil, nil
		}
		row, err := e.source.BestByPrefix(ctx, code[:length])
		if err != nil || row == nil {
			return nil, err
		}
		if row.MFNRate <= 0 {
			return nil, nil
		}
		return e.record(row, code, tag), nil
	}
}

// chapterSimilarity is strategy 4: any treaty record in the 2-digit
// chapter with a meaningful rate (MFN > 5).
func (e *Engine) chapterSimilarity(ctx context.Context, code string) (*model.TariffRate, error) {
	row, err := e.source.BestByChapter(ctx, code[:2], chapterMinRate)
	if err != nil || row == nil {
		return nil, err
	}
	return e.record(row, code, model.SourceChapterFallback), nil
}

// record builds the immutable output record: the code is always the
// original query, not the row that answered it.
func (e *Engine) record(row *Row, code, source string) *model.TariffRate {
	country := row.Country
	if country == "" {
		country = e.country
	}
	rate := model.NewTariffRate(code, row.MFNRate, row.USMCARate, country, source)
	return &rate
}

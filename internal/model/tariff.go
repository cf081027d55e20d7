package model

// TariffRate is the resolved duty-rate record for a classification code.
// Rates are percentages expressed as plain floats (25.0 means 25%).
// Immutable once produced; SavingsPercent is always derived from its inputs.
type TariffRate struct {
	HSCode         string  `json:"hs_code"`
	MFNRate        float64 `json:"mfn_rate"`
	USMCARate      float64 `json:"usmca_rate"`
	SavingsPercent float64 `json:"savings_percent"`
	Country        string  `json:"country"`
	Source         string  `json:"source"`
}

// Resolution source tags, in cascade order.
const (
	SourceDirect          = "direct_hts_record"
	SourceTreaty          = "treaty_table_lookup"
	SourceProgressive6    = "progressive_hs_6digit_deterministic"
	SourceProgressive4    = "progressive_hs_4digit_deterministic"
	SourceProgressive2    = "progressive_hs_2digit_deterministic"
	SourceChapterFallback = "chapter_similarity_fallback"
	SourceDefaultFallback = "default_fallback"
	SourceErrorFallback   = "error_fallback"
)

// NewTariffRate builds a rate record with the savings percentage derived
// as max(0, mfn - usmca).
func NewTariffRate(hsCode string, mfn, usmca float64, country, source string) TariffRate {
	savings := mfn - usmca
	if savings < 0 {
		savings = 0
	}
	return TariffRate{
		HSCode:         hsCode,
		MFNRate:        mfn,
		USMCARate:      usmca,
		SavingsPercent: savings,
		Country:        country,
		Source:         source,
	}
}

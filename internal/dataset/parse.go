package dataset

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseRate converts a published duty-rate cell to a percentage float.
// Schedules write free lines as "Free", ad valorem rates as "25%" or
// "25.0", and leave suspended lines blank. Compound and specific rates
// ("2.6¢/kg + 4%") are not ad valorem and are rejected.
func ParseRate(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, eris.New("dataset: empty rate cell")
	}
	if strings.EqualFold(s, "free") {
		return 0, nil
	}

	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("dataset: non-ad-valorem rate %q", cell)
	}
	if v < 0 {
		return 0, eris.Errorf("dataset: negative rate %q", cell)
	}
	return v, nil
}

// ParseOptionalRate is ParseRate with blank treated as zero, for special
// rate columns that are empty when no preference applies.
func ParseOptionalRate(cell string) (float64, error) {
	if strings.TrimSpace(cell) == "" {
		return 0, nil
	}
	return ParseRate(cell)
}

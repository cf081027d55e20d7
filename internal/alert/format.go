package alert

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/tariffwatch/internal/model"
)

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatUSD renders a dollar amount with grouping, e.g. "$1,234,567".
func FormatUSD(amount float64) string {
	return usd.Sprintf("$%v", number.Decimal(amount, number.MaxFractionDigits(0)))
}

// Headline builds the one-line notification text for an alert.
func Headline(a model.Alert) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(string(a.Severity)))
	b.WriteString(": ")
	b.WriteString(policyLabel(a.PolicyType))
	b.WriteString(" change raises your annual duty cost by ")
	b.WriteString(FormatUSD(a.CostImpact))
	if a.MexicoSourcingSavings > 0 {
		b.WriteString(" (Mexico sourcing could save ")
		b.WriteString(FormatUSD(a.MexicoSourcingSavings))
		b.WriteString(")")
	}
	return b.String()
}

func policyLabel(p model.PolicyType) string {
	switch p {
	case model.PolicySection301:
		return "Section 301"
	case model.PolicySection232:
		return "Section 232"
	case model.PolicyMFNRate:
		return "MFN rate"
	case model.PolicyColumn2:
		return "Column 2 rate"
	default:
		return string(p)
	}
}

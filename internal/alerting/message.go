package alerting

import (
	"strings"

	"token-price-alerts/internal/change"
	"token-price-alerts/internal/fetcher"
	"token-price-alerts/internal/format"
)

const (
	alertBanner  = "🚨 *Price alert!* 🚨\n\n"
	digestBanner = "📊 *Price digest*\n\n"
)

// AlertLine is one entry of a consolidated alert message.
type AlertLine struct {
	Quote  fetcher.Quote
	Result change.Result
}

// RenderAlert builds the consolidated alert text for a batch. It returns an
// empty string when no line carries an alert classification.
func RenderAlert(lines []AlertLine) string {
	var body strings.Builder
	for _, line := range lines {
		if !line.Result.Class.IsAlert() || line.Result.Percent == nil {
			continue
		}

		pct := format.Percent(*line.Result.Percent)
		price := format.Price(line.Quote.Price)
		if line.Result.Class == change.RisingAlert {
			body.WriteString("🚀 *" + line.Quote.Symbol + " rose!* 📈\n")
			body.WriteString("Price now: " + price + " on " + line.Quote.Venue + " (up " + pct + ")\n\n")
		} else {
			body.WriteString("⚠️ *" + line.Quote.Symbol + " fell!* 📉\n")
			body.WriteString("Price now: " + price + " on " + line.Quote.Venue + " (down " + pct + ")\n\n")
		}
	}
	if body.Len() == 0 {
		return ""
	}
	return strings.TrimRight(alertBanner+body.String(), "\n")
}

// RenderDigest lists every fetched quote in order, followed by the assets that could not be quoted.
func RenderDigest(quotes []fetcher.Quote, unavailable []string) string {
	var b strings.Builder
	b.WriteString(digestBanner)

	if len(quotes) == 0 {
		b.WriteString("No quotes available this round.\n")
	}
	for _, q := range quotes {
		b.WriteString("*" + q.Symbol + "*: " + format.Price(q.Price) + " (" + q.Venue + ")\n")
	}
	if len(unavailable) > 0 {
		shortened := make([]string, len(unavailable))
		for i, id := range unavailable {
			shortened[i] = shortID(id)
		}
		b.WriteString("\nUnavailable: " + strings.Join(shortened, ", ") + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// shortID abbreviates long chain addresses as head…tail.
func shortID(id string) string {
	r := []rune(id)
	if len(r) <= 14 {
		return id
	}
	return string(r[:6]) + "…" + string(r[len(r)-4:])
}

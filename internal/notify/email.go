package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

const subjectTitleLen = 50

// AlertSubject formats the subject line of an opportunity alert.
func AlertSubject(c domain.AlertCandidate) string {
	title := []rune(c.Title)
	if len(title) > subjectTitleLen {
		title = title[:subjectTitleLen]
	}
	return fmt.Sprintf("Arbitrage Alert: $%.2f profit (%.0f%% ROI) - %s",
		c.Opportunity.Profit, c.Opportunity.ROIPct, string(title))
}

var alertTmpl = template.Must(template.New("alert").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
}).Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #16a34a;">Arbitrage Opportunity Found!</h2>
  <div style="background: #f9fafb; border-radius: 8px; padding: 16px; margin: 16px 0;">
    <h3>{{.Title}}</h3>
    <table style="width: 100%; border-collapse: collapse;">
      <tr><td><strong>MacBid Current Bid</strong></td><td>{{money .CurrentBid}}</td></tr>
      <tr><td><strong>Total Buy Cost</strong></td><td>{{money .Opportunity.BuyCost}}</td></tr>
      <tr><td><strong>Est. Sell Price ({{.Opportunity.Marketplace}})</strong></td><td>{{money .Opportunity.EstimatedSellPrice}}</td></tr>
      <tr><td><strong>Platform Fees</strong></td><td>{{money .Opportunity.PlatformFees}}</td></tr>
      <tr style="background: #dcfce7;"><td><strong>Estimated Profit</strong></td><td><strong style="color: #16a34a;">{{money .Opportunity.Profit}}</strong></td></tr>
      <tr style="background: #dcfce7;"><td><strong>ROI</strong></td><td><strong style="color: #16a34a;">{{pct .Opportunity.ROIPct}}</strong></td></tr>
    </table>
  </div>
  <a href="{{.ListingURL}}" style="display: inline-block; background: #2563eb; color: white; padding: 12px 24px; border-radius: 6px; text-decoration: none;">View on MacBid</a>
</div>
`))

// RenderAlert renders the HTML body of an opportunity alert.
func RenderAlert(c domain.AlertCandidate) (string, error) {
	var buf bytes.Buffer
	if err := alertTmpl.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("notify: render alert: %w", err)
	}
	return buf.String(), nil
}

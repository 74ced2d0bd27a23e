package sales

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Receipt renders a plain-text receipt for a posted sale. Amounts are
// grouped with locale-aware separators; cents are fixed to two places.
func Receipt(sale Sale, payments []Payment, products map[int64]string) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "SALE %s\n", sale.Code)
	b.WriteString(strings.Repeat("-", 38) + "\n")
	for _, line := range sale.Lines {
		name := products[line.ProductID]
		if name == "" {
			name = fmt.Sprintf("#%d", line.ProductID)
		}
		p.Fprintf(&b, "%-20s %3d x %8s %10s\n", truncate(name, 20), line.Quantity,
			money(p, line.UnitPriceCents), money(p, line.LineTotalCents))
	}
	b.WriteString(strings.Repeat("-", 38) + "\n")
	p.Fprintf(&b, "%-26s %10s\n", "TOTAL", money(p, sale.TotalDueCents))
	for _, pay := range payments {
		if pay.Status != PaymentCompleted {
			continue
		}
		p.Fprintf(&b, "%-26s %10s\n", string(pay.Tender), money(p, pay.AmountCents))
	}
	if sale.ChangeDueCents > 0 {
		p.Fprintf(&b, "%-26s %10s\n", "CHANGE", money(p, sale.ChangeDueCents))
	}
	if sale.Status == SaleVoided {
		b.WriteString("*** VOIDED ***\n")
	}
	return b.String()
}

func money(p *message.Printer, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return p.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

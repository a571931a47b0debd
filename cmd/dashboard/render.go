package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/cryptodash/internal/models"
)

func renderHistory(w io.Writer, coin string, hist *models.HistoricalData, sum *models.Summary) {
	fmt.Fprintf(w, "\n%s: %d daily prices\n", strings.ToUpper(coin), len(hist.Prices))
	fmt.Fprintln(w, strings.Repeat("-", 28))

	if len(hist.MonthlyAverages) == 0 {
		fmt.Fprintln(w, "no monthly data")
	}
	for _, ma := range hist.MonthlyAverages {
		fmt.Fprintf(w, "%-10s %16s\n", ma.Month, "$"+ma.Average.StringFixed(2))
	}
	fmt.Fprintln(w, strings.Repeat("-", 28))

	if sum == nil {
		return
	}
	if sum.AveragePrice != nil {
		fmt.Fprintf(w, "%-10s %16s\n", "Average", "$"+*sum.AveragePrice)
	} else {
		fmt.Fprintf(w, "%-10s %16s\n", "Average", "n/a")
	}
	fmt.Fprintf(w, "%-10s %16s\n", "Live", formatUSD(sum.LivePrice))
	fmt.Fprintf(w, "%-10s %16s\n\n", "Deviation", formatDeviation(sum))
}

func renderLive(w io.Writer, at time.Time, coin string, usd float64, sum *models.Summary) {
	line := fmt.Sprintf("[%s] %s %s", at.Format("15:04:05"), coin, formatUSD(usd))
	if sum != nil && sum.DeviationPercent != nil {
		line += " (" + formatDeviation(sum) + " vs average)"
	}
	fmt.Fprintln(w, line)
}

func formatUSD(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func formatDeviation(sum *models.Summary) string {
	if sum.DeviationPercent == nil {
		return "n/a"
	}
	pct := *sum.DeviationPercent
	if sum.Direction == "up" && !strings.HasPrefix(pct, "+") {
		pct = "+" + pct
	}
	return pct + "%"
}

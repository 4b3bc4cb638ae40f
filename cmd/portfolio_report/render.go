package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/display"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func printSummary(w io.Writer, v dashboard.SummaryView) {
	s := v.Summary
	fmt.Fprintf(w, "Snapshot %s (%s), filter %s\n\n", v.SnapshotID, v.TakenAt.Format("2006-01-02 15:04 MST"), v.Filter)

	tw := newTable(w)
	fmt.Fprintf(tw, "Current value\t%s\t%s\t\n", display.IndianMoney(s.TotalCurrentValue), display.Compact(s.TotalCurrentValue, "INR"))
	fmt.Fprintf(tw, "Invested\t%s\t%s\t\n", display.IndianMoney(s.TotalInvestmentValue), display.Compact(s.TotalInvestmentValue, "INR"))
	fmt.Fprintf(tw, "Overall P&L\t%s\t%s\t\n", display.SignedMoney(s.OverallPnL, "INR"), display.SignedPercent(s.OverallPnLPercent))
	fmt.Fprintf(tw, "Day change\t%s\t%s\t\n", display.SignedMoney(s.TotalDayChange, "INR"), display.SignedPercent(s.TotalDayChangePercent))
	fmt.Fprintf(tw, "Records\t%d\t\t\n", s.Count)
	tw.Flush()

	printGroups(w, "By asset type", v.ByAssetType)
	printGroups(w, "By exchange", v.ByExchange)
}

func printGroups(w io.Writer, title string, groups []portfolio.Group) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	tw := newTable(w)
	fmt.Fprintln(tw, "\tValue\tP&L\tP&L %\tCount\t")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t\n", g.Key,
			display.IndianMoney(g.Summary.TotalCurrentValue),
			display.SignedMoney(g.Summary.OverallPnL, "INR"),
			display.SignedPercent(g.Summary.OverallPnLPercent),
			g.Summary.Count)
	}
	tw.Flush()
}

func printValuations(w io.Writer, v dashboard.ValuationsView) {
	tw := newTable(w)
	fmt.Fprintln(tw, "Record\tKind\tQty\tLTP\tValue\tInvested\tP&L\tP&L %\t")
	for _, row := range v.Rows {
		r, val := row.Record, row.Valuation
		code := r.QuoteCurrency()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Label(), r.Kind,
			fmt.Sprint(display.Round(r.Quantity, 4)),
			display.Money(r.LastPrice, code),
			display.Money(val.CurrentValue, code),
			display.Money(val.InvestedValue, code),
			display.SignedMoney(val.PnL, code),
			display.SignedPercent(val.PnLPercent))
	}
	tw.Flush()
}

func printChart(w io.Writer, v dashboard.ChartView) {
	var total float64
	for _, p := range v.Series {
		total += p.Value
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "Name\tValue\tShare\t")
	for _, p := range v.Series {
		share := 0.0
		if total > 0 {
			share = p.Value / total * 100
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", p.Name, display.IndianMoney(p.Value), display.Percent(share))
	}
	tw.Flush()
}

func printHeatmap(w io.Writer, v dashboard.HeatmapView) {
	tw := newTable(w)
	fmt.Fprintln(tw, "Name\tValue\tSize\tP&L %\tIntensity\tTone\t")
	for _, c := range v.Cells {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\t\n", c.Name,
			display.IndianMoney(c.Value),
			display.Percent(c.SizePercent),
			display.SignedPercent(c.PnLPercent),
			c.Intensity, c.Tone)
	}
	tw.Flush()
}

func printPledge(w io.Writer, v dashboard.PledgeView) {
	e := v.Economics
	fmt.Fprintf(w, "%s %s x %s (haircut %s, %s p.a., %d days)\n\n", e.Mode, v.Holding.Label(), e.Quantity,
		display.Percent(e.Rates.HaircutRate), display.Percent(e.Rates.AnnualRate), e.Rates.Days)

	tw := newTable(w)
	fmt.Fprintf(tw, "Collateral value\t%s\t\n", display.IndianMoney(e.CollateralValue.InexactFloat64()))
	fmt.Fprintf(tw, "Haircut\t%s\t\n", display.IndianMoney(e.HaircutAmount.InexactFloat64()))
	fmt.Fprintf(tw, "Margin\t%s\t\n", display.IndianMoney(e.ResultingMargin.InexactFloat64()))
	if e.InterestLevied.Valid {
		fmt.Fprintf(tw, "Interest\t%s\t\n", display.IndianMoney(e.InterestLevied.Decimal.InexactFloat64()))
	}
	if e.TotalPayback.Valid {
		fmt.Fprintf(tw, "Total payback\t%s\t\n", display.IndianMoney(e.TotalPayback.Decimal.InexactFloat64()))
	}
	tw.Flush()
}

func printSnapshots(w io.Writer, infos []model.SnapshotInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTaken at\tSource\tRecords")
	for _, in := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", in.ID, in.TakenAt.Format("2006-01-02 15:04:05 MST"), in.Source, in.RecordCount)
	}
	tw.Flush()
}

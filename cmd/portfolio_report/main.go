// cmd/portfolio_report prints portfolio views straight from the SQLite
// snapshot store, without the API server.
//
// Usage:
//
//	go run ./cmd/portfolio_report --view=summary --filter=IndianStocks
//	go run ./cmd/portfolio_report --view=pledge --id=NSE:INFY-EQ --qty=10 --mode=payback
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"portfolio-enginev1/config"
	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
	sqlitestore "portfolio-enginev1/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)
	cfg := config.Load()

	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	snapID := flag.String("snapshot", "", "Snapshot ID (default: latest)")
	view := flag.String("view", "summary", "summary | holdings | chart | heatmap | pledge | snapshots")
	filter := flag.String("filter", "All", "Filter kind: "+fmt.Sprint(portfolio.FilterKinds()))
	ceiling := flag.Float64("ceiling", cfg.HeatmapCeiling, "Heatmap intensity ceiling, in percent")
	holdingID := flag.String("id", "", "Holding ID for --view=pledge")
	qty := flag.Float64("qty", 0, "Quantity for --view=pledge")
	mode := flag.String("mode", string(portfolio.ModePledge), "pledge | payback")
	limit := flag.Int("limit", 20, "Rows for --view=snapshots")
	asJSON := flag.Bool("json", false, "Print the raw view as JSON")
	flag.Parse()

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[report] sqlite open failed: %v", err)
	}
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *view == "snapshots" {
		infos, err := reader.ListSnapshots(ctx, *limit)
		if err != nil {
			log.Fatalf("[report] %v", err)
		}
		emit(*asJSON, infos, func() { printSnapshots(os.Stdout, infos) })
		return
	}

	snap, err := loadSnapshot(ctx, reader, *snapID)
	if err != nil {
		log.Fatalf("[report] %v", err)
	}
	kind, err := portfolio.ParseFilterKind(*filter)
	if err != nil {
		log.Fatalf("[report] %v", err)
	}

	switch *view {
	case "summary":
		v, err := dashboard.SummaryFor(snap, kind, time.Now().UTC())
		exitOn(err)
		emit(*asJSON, v, func() { printSummary(os.Stdout, v) })
	case "holdings":
		v, err := dashboard.ValuationsFor(snap, kind)
		exitOn(err)
		emit(*asJSON, v, func() { printValuations(os.Stdout, v) })
	case "chart":
		v, err := dashboard.ChartFor(snap, kind)
		exitOn(err)
		emit(*asJSON, v, func() { printChart(os.Stdout, v) })
	case "heatmap":
		v, err := dashboard.HeatmapFor(snap, kind, *ceiling)
		exitOn(err)
		emit(*asJSON, v, func() { printHeatmap(os.Stdout, v) })
	case "pledge":
		v, err := dashboard.PledgeFor(snap, dashboard.PledgeRequest{
			HoldingID: *holdingID,
			Quantity:  *qty,
			Mode:      portfolio.PledgeMode(*mode),
		}, cfg.PledgeRates())
		exitOn(err)
		emit(*asJSON, v, func() { printPledge(os.Stdout, v) })
	default:
		log.Fatalf("[report] unknown view %q", *view)
	}
}

type snapshotReader interface {
	LatestSnapshot(ctx context.Context) (model.Snapshot, error)
	Snapshot(ctx context.Context, id string) (model.Snapshot, error)
}

func loadSnapshot(ctx context.Context, r snapshotReader, id string) (model.Snapshot, error) {
	if id == "" {
		return r.LatestSnapshot(ctx)
	}
	return r.Snapshot(ctx, id)
}

func emit(asJSON bool, v any, text func()) {
	if !asJSON {
		text()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	exitOn(enc.Encode(v))
}

func exitOn(err error) {
	if err != nil {
		log.Fatalf("[report] %s: %v", dashboard.ErrorKind(err), err)
	}
}

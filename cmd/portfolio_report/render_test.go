package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

func sampleSnapshot() model.Snapshot {
	return model.Snapshot{
		ID:      "snap-1",
		TakenAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Source:  "manual",
		Records: []model.Record{
			model.NewHolding("h1", "INFY", model.AssetStock, model.ExchangeNSE, 10, 1400, 1500),
			model.NewHolding("h2", "AAPL", model.AssetStock, model.ExchangeNASDAQ, 2, 150, 200),
		},
	}
}

func TestPrintSummary(t *testing.T) {
	v, err := dashboard.SummaryFor(sampleSnapshot(), portfolio.FilterIndianStocks, time.Now())
	if err != nil {
		t.Fatalf("SummaryFor: %v", err)
	}
	var buf bytes.Buffer
	printSummary(&buf, v)
	out := buf.String()
	for _, want := range []string{"snap-1", "IndianStocks", "₹15,000.00", "By exchange", "NSE"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintValuations_UsesQuoteCurrency(t *testing.T) {
	v, err := dashboard.ValuationsFor(sampleSnapshot(), portfolio.FilterAll)
	if err != nil {
		t.Fatalf("ValuationsFor: %v", err)
	}
	var buf bytes.Buffer
	printValuations(&buf, v)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "INFY") || !strings.Contains(lines[1], "₹") {
		t.Errorf("INFY row not in rupees: %q", lines[1])
	}
	if !strings.Contains(lines[2], "AAPL") || !strings.Contains(lines[2], "$") {
		t.Errorf("AAPL row not in dollars: %q", lines[2])
	}
}

func TestPrintPledge_PaybackOnlyLines(t *testing.T) {
	snap := sampleSnapshot()
	for _, tc := range []struct {
		mode     portfolio.PledgeMode
		interest bool
	}{
		{portfolio.ModePledge, false},
		{portfolio.ModePayback, true},
	} {
		v, err := dashboard.PledgeFor(snap, dashboard.PledgeRequest{HoldingID: "h1", Quantity: 5, Mode: tc.mode}, portfolio.DefaultPledgeRates())
		if err != nil {
			t.Fatalf("PledgeFor(%s): %v", tc.mode, err)
		}
		var buf bytes.Buffer
		printPledge(&buf, v)
		out := buf.String()
		if !strings.Contains(out, "₹7,500.00") {
			t.Errorf("%s: collateral missing:\n%s", tc.mode, out)
		}
		if got := strings.Contains(out, "Interest"); got != tc.interest {
			t.Errorf("%s: interest line present = %v, want %v", tc.mode, got, tc.interest)
		}
	}
}

func TestPrintSnapshots(t *testing.T) {
	var buf bytes.Buffer
	printSnapshots(&buf, []model.SnapshotInfo{sampleSnapshot().Info()})
	if !strings.Contains(buf.String(), "snap-1") || !strings.Contains(buf.String(), "manual") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

type fakeReader struct {
	latest model.Snapshot
	byID   map[string]model.Snapshot
}

func (f fakeReader) LatestSnapshot(context.Context) (model.Snapshot, error) { return f.latest, nil }

func (f fakeReader) Snapshot(_ context.Context, id string) (model.Snapshot, error) {
	s, ok := f.byID[id]
	if !ok {
		return model.Snapshot{}, errors.New("not found")
	}
	return s, nil
}

func TestLoadSnapshot(t *testing.T) {
	r := fakeReader{
		latest: model.Snapshot{ID: "latest"},
		byID:   map[string]model.Snapshot{"old": {ID: "old"}},
	}
	ctx := context.Background()
	if s, _ := loadSnapshot(ctx, r, ""); s.ID != "latest" {
		t.Errorf("empty id loaded %q", s.ID)
	}
	if s, _ := loadSnapshot(ctx, r, "old"); s.ID != "old" {
		t.Errorf("explicit id loaded %q", s.ID)
	}
	if _, err := loadSnapshot(ctx, r, "missing"); err == nil {
		t.Error("expected error for unknown id")
	}
}

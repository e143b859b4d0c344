package usage

import (
	"context"
	"math"
	"testing"

	"github.com/knowbot-ai/knowbot/internal/testutil"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(testutil.OpenTestDB(t), nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestCost(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		in     int64
		out    int64
		want   float64
	}{
		{"pro model", "gpt-4o", 1000, 1000, 0.005 + 0.015},
		{"lite model", "gpt-4o-mini", 1000, 1000, 0.00015 + 0.0006},
		{"lite realistic", "gpt-4o-mini", 2500, 400, 2.5*0.00015 + 0.4*0.0006},
		{"unknown model", "bogus", 1000, 1000, 0},
		{"zero tokens", "gpt-4o", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.model, tt.in, tt.out)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost(%s, %d, %d) = %f, want %f", tt.model, tt.in, tt.out, got, tt.want)
			}
		})
	}
}

func TestReportAndSummary(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	if err := l.Report(ctx, "acc", "gpt-4o-mini", 1000, 500, ActivityChat); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := l.Report(ctx, "acc", "gpt-4o", 2000, 1000, ActivityChat); err != nil {
		t.Fatalf("Report: %v", err)
	}
	// Other accounts never leak into the summary.
	if err := l.Report(ctx, "other", "gpt-4o", 9999, 9999, ActivityChat); err != nil {
		t.Fatalf("Report: %v", err)
	}

	totals, err := l.Summary(ctx, "acc")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if totals.Records != 2 {
		t.Errorf("records = %d, want 2", totals.Records)
	}
	if totals.TotalInputTokens != 3000 || totals.TotalOutputTokens != 1500 {
		t.Errorf("token totals = %d/%d, want 3000/1500",
			totals.TotalInputTokens, totals.TotalOutputTokens)
	}
	wantCost := Cost("gpt-4o-mini", 1000, 500) + Cost("gpt-4o", 2000, 1000)
	if math.Abs(totals.TotalCost-wantCost) > 1e-9 {
		t.Errorf("total cost = %f, want %f", totals.TotalCost, wantCost)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for i := 0; i < 3; i++ {
		if err := l.Report(ctx, "acc", "gpt-4o-mini", int64(i+1), 0, ActivityChat); err != nil {
			t.Fatalf("Report: %v", err)
		}
	}

	records, err := l.Transactions(ctx, "acc", 2)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2 (limit applied)", len(records))
	}
	if records[0].InputTokens != 3 {
		t.Errorf("newest record input = %d, want 3", records[0].InputTokens)
	}
	if records[0].ActivityType != ActivityChat {
		t.Errorf("activity = %q, want %q", records[0].ActivityType, ActivityChat)
	}
}

func TestSummaryEmptyAccount(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	totals, err := l.Summary(ctx, "nobody")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if totals.Records != 0 || totals.TotalCost != 0 {
		t.Errorf("empty account totals = %+v", totals)
	}
}

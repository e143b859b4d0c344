// Package usage records model token consumption and its cost.
//
// Every chat completion reports one usage record. Records are append-only;
// cost is computed at write time from a fixed per-model price table so later
// price changes never rewrite history.
package usage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// ActivityChat tags records produced by the chat orchestrator.
const ActivityChat = "chatbot"

// price is USD per 1000 tokens.
type price struct {
	input  float64
	output float64
}

var pricing = map[string]price{
	"gpt-4o":      {input: 0.005, output: 0.015},
	"gpt-4o-mini": {input: 0.00015, output: 0.0006},
}

// Record is one billable model call.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	ModelID      string    `json:"model_id"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	ActivityType string    `json:"activity_type"`
}

// Totals aggregates an account's usage.
type Totals struct {
	TotalCost         float64 `json:"total_cost"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	Records           int64   `json:"records"`
}

// Cost returns the USD cost of a call. Unknown models cost zero.
func Cost(modelID string, inputTokens, outputTokens int64) float64 {
	p, ok := pricing[modelID]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*p.input + float64(outputTokens)/1000*p.output
}

type usageModel struct {
	ID           uint   `gorm:"primaryKey"`
	Account      string `gorm:"index;not null"`
	Timestamp    time.Time
	ModelID      string `gorm:"not null"`
	InputTokens  int64  `gorm:"not null"`
	OutputTokens int64  `gorm:"not null"`
	Cost         float64
	ActivityType string
}

func (usageModel) TableName() string { return "usage_records" }

// Ledger persists usage records per account.
type Ledger struct {
	db     *gorm.DB
	logger log.Logger
}

// NewLedger creates a usage ledger and migrates its schema.
func NewLedger(db *gorm.DB, logger log.Logger) (*Ledger, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&usageModel{}); err != nil {
		return nil, fmt.Errorf("migrating usage schema: %w", err)
	}
	return &Ledger{db: db, logger: logger}, nil
}

// Report appends one usage record with its cost computed from the price
// table.
func (l *Ledger) Report(ctx context.Context, account, modelID string, inputTokens, outputTokens int64, activity string) error {
	rec := usageModel{
		Account:      account,
		Timestamp:    time.Now().UTC(),
		ModelID:      modelID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         Cost(modelID, inputTokens, outputTokens),
		ActivityType: activity,
	}
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}

	l.logger.Debug("usage recorded", "account", account, "model", modelID,
		"input_tokens", inputTokens, "output_tokens", outputTokens, "cost", rec.Cost)
	return nil
}

// Transactions returns the account's most recent records, newest first.
// With limit <= 0 all records are returned.
func (l *Ledger) Transactions(ctx context.Context, account string, limit int) ([]Record, error) {
	q := l.db.WithContext(ctx).
		Where("account = ?", account).
		Order("timestamp desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []usageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing usage records: %w", err)
	}

	records := make([]Record, len(models))
	for i, m := range models {
		records[i] = Record{
			Timestamp:    m.Timestamp,
			ModelID:      m.ModelID,
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
			Cost:         m.Cost,
			ActivityType: m.ActivityType,
		}
	}
	return records, nil
}

// Summary aggregates the account's total spend and token counts.
func (l *Ledger) Summary(ctx context.Context, account string) (Totals, error) {
	var t Totals
	err := l.db.WithContext(ctx).Model(&usageModel{}).
		Where("account = ?", account).
		Select("COALESCE(SUM(cost), 0) AS total_cost, " +
			"COALESCE(SUM(input_tokens), 0) AS total_input_tokens, " +
			"COALESCE(SUM(output_tokens), 0) AS total_output_tokens, " +
			"COUNT(*) AS records").
		Scan(&t).Error
	if err != nil {
		return Totals{}, fmt.Errorf("summarizing usage: %w", err)
	}
	return t, nil
}

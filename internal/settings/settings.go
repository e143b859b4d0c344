// Package settings stores per-knowledge-base persona settings: tone, humor
// and brevity on a 0..4 scale plus an optional free-form addition to the
// system prompt. A KB without saved settings gets the defaults.
package settings

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// Scale bounds for tone, humor and brevity.
const (
	LevelMin = 0
	LevelMax = 4
)

// ErrValidation indicates a setting outside the allowed scale.
var ErrValidation = errors.New("invalid settings")

// Settings is the persona configuration of one knowledge base.
type Settings struct {
	Tone             int    `json:"tone"`
	Humor            int    `json:"humor"`
	Brevity          int    `json:"brevity"`
	AdditionalPrompt string `json:"additional_prompt"`
}

// Defaults returns the middle-of-scale settings used until a KB saves its
// own.
func Defaults() Settings {
	return Settings{Tone: 2, Humor: 2, Brevity: 2}
}

// Validate checks that all levels are on the 0..4 scale.
func (s Settings) Validate() error {
	if s.Tone < LevelMin || s.Tone > LevelMax {
		return fmt.Errorf("%w: tone must be between %d and %d", ErrValidation, LevelMin, LevelMax)
	}
	if s.Humor < LevelMin || s.Humor > LevelMax {
		return fmt.Errorf("%w: humor must be between %d and %d", ErrValidation, LevelMin, LevelMax)
	}
	if s.Brevity < LevelMin || s.Brevity > LevelMax {
		return fmt.Errorf("%w: brevity must be between %d and %d", ErrValidation, LevelMin, LevelMax)
	}
	return nil
}

type settingsModel struct {
	ID               uint   `gorm:"primaryKey"`
	KBID             string `gorm:"column:kb_id;uniqueIndex;not null"`
	Tone             int    `gorm:"not null"`
	Humor            int    `gorm:"not null"`
	Brevity          int    `gorm:"not null"`
	AdditionalPrompt string
}

func (settingsModel) TableName() string { return "kb_settings" }

// Store persists per-KB settings.
type Store struct {
	db     *gorm.DB
	logger log.Logger
}

// NewStore creates a settings store and migrates its schema.
func NewStore(db *gorm.DB, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&settingsModel{}); err != nil {
		return nil, fmt.Errorf("migrating settings schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Get returns the KB's settings, or the defaults when none were saved.
func (s *Store) Get(ctx context.Context, kbID string) (Settings, error) {
	var m settingsModel
	err := s.db.WithContext(ctx).Where("kb_id = ?", kbID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	return Settings{
		Tone:             m.Tone,
		Humor:            m.Humor,
		Brevity:          m.Brevity,
		AdditionalPrompt: m.AdditionalPrompt,
	}, nil
}

// Save validates and upserts the KB's settings.
func (s *Store) Save(ctx context.Context, kbID string, set Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}

	updates := map[string]any{
		"tone":              set.Tone,
		"humor":             set.Humor,
		"brevity":           set.Brevity,
		"additional_prompt": set.AdditionalPrompt,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&settingsModel{}).Where("kb_id = ?", kbID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&settingsModel{
			KBID:             kbID,
			Tone:             set.Tone,
			Humor:            set.Humor,
			Brevity:          set.Brevity,
			AdditionalPrompt: set.AdditionalPrompt,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	s.logger.Debug("settings saved", "kb_id", kbID,
		"tone", set.Tone, "humor", set.Humor, "brevity", set.Brevity)
	return nil
}

// Delete removes the KB's saved settings, reverting it to the defaults.
func (s *Store) Delete(ctx context.Context, kbID string) error {
	if err := s.db.WithContext(ctx).
		Where("kb_id = ?", kbID).
		Delete(&settingsModel{}).Error; err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	return nil
}

package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/config"
	"github.com/knowbot-ai/knowbot/internal/log"
)

type modelChoice struct {
	Account string `gorm:"primaryKey"`
	ModelID string `gorm:"column:model_id;not null"`
}

func (modelChoice) TableName() string { return "model_choices" }

// ModelStore persists each account's chosen chat model. Accounts without a
// saved choice use the configured default.
type ModelStore struct {
	db           *gorm.DB
	defaultModel string
	logger       log.Logger
}

// NewModelStore creates a model store and migrates its schema.
func NewModelStore(db *gorm.DB, defaultModel string, logger log.Logger) (*ModelStore, error) {
	if !config.ValidModel(defaultModel) {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidModelName, defaultModel)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&modelChoice{}); err != nil {
		return nil, fmt.Errorf("migrating model choice schema: %w", err)
	}
	return &ModelStore{db: db, defaultModel: defaultModel, logger: logger}, nil
}

// Get returns the account's chat model.
func (s *ModelStore) Get(ctx context.Context, account string) (string, error) {
	var m modelChoice
	err := s.db.WithContext(ctx).Where("account = ?", account).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultModel, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading model choice: %w", err)
	}
	return m.ModelID, nil
}

// Set saves the account's chat model. Unknown model names are rejected.
func (s *ModelStore) Set(ctx context.Context, account, modelID string) error {
	if !config.ValidModel(modelID) {
		return fmt.Errorf("%w: %q", config.ErrInvalidModelName, modelID)
	}
	if err := s.db.WithContext(ctx).
		Save(&modelChoice{Account: account, ModelID: modelID}).Error; err != nil {
		return fmt.Errorf("saving model choice: %w", err)
	}

	s.logger.Info("chat model changed", "account", account, "model", modelID)
	return nil
}

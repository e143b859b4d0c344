// Package status implements the per-account chatbot stop switch.
//
// The switch has two levels of authority: the account owner can stop and
// start their own bot, while an admin stop locks the bot until an admin
// starts it again. Self-serve start attempts against an admin stop fail
// with ErrAdminStopped.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// Actors that may flip the switch.
const (
	ActorUser  = "user"
	ActorAdmin = "admin"
)

// ErrAdminStopped indicates the bot was stopped by an admin and only an
// admin may start it again.
var ErrAdminStopped = errors.New("chatbot stopped by admin")

// Status is the current state of an account's bot.
type Status struct {
	Stopped   bool       `json:"stopped"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	StoppedBy string     `json:"stopped_by,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type statusModel struct {
	Account   string `gorm:"primaryKey"`
	Stopped   bool
	StoppedAt *time.Time
	StoppedBy string
	Message   string
	UpdatedAt time.Time
}

func (statusModel) TableName() string { return "chatbot_status" }

// Switch persists the stop state per account. A missing row means running.
type Switch struct {
	db     *gorm.DB
	logger log.Logger
}

// NewSwitch creates a stop switch and migrates its schema.
func NewSwitch(db *gorm.DB, logger log.Logger) (*Switch, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&statusModel{}); err != nil {
		return nil, fmt.Errorf("migrating status schema: %w", err)
	}
	return &Switch{db: db, logger: logger}, nil
}

// Get returns the account's current status.
func (s *Switch) Get(ctx context.Context, account string) (Status, error) {
	var m statusModel
	err := s.db.WithContext(ctx).Where("account = ?", account).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("loading status: %w", err)
	}
	return Status{
		Stopped:   m.Stopped,
		StoppedAt: m.StoppedAt,
		StoppedBy: m.StoppedBy,
		Message:   m.Message,
	}, nil
}

// Stop halts the account's bot. Message is shown to chat users instead of
// answers. A user stop cannot lower an existing admin stop to user level.
func (s *Switch) Stop(ctx context.Context, account, actor, message string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m statusModel
		ferr := tx.Where("account = ?", account).First(&m).Error
		if ferr != nil && !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return ferr
		}
		if m.Stopped && m.StoppedBy == ActorAdmin && actor != ActorAdmin {
			return ErrAdminStopped
		}

		now := time.Now().UTC()
		return tx.Save(&statusModel{
			Account:   account,
			Stopped:   true,
			StoppedAt: &now,
			StoppedBy: actor,
			Message:   message,
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrAdminStopped) {
			return err
		}
		return fmt.Errorf("stopping chatbot: %w", err)
	}

	s.logger.Info("chatbot stopped", "account", account, "by", actor)
	return nil
}

// Start resumes the account's bot. Only an admin may clear an admin stop.
func (s *Switch) Start(ctx context.Context, account, actor string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m statusModel
		ferr := tx.Where("account = ?", account).First(&m).Error
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil
		}
		if ferr != nil {
			return ferr
		}
		if m.Stopped && m.StoppedBy == ActorAdmin && actor != ActorAdmin {
			return ErrAdminStopped
		}

		return tx.Save(&statusModel{Account: account}).Error
	})
	if err != nil {
		if errors.Is(err, ErrAdminStopped) {
			return err
		}
		return fmt.Errorf("starting chatbot: %w", err)
	}

	s.logger.Info("chatbot started", "account", account, "by", actor)
	return nil
}

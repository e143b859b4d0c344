package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/log"
)

type sessionModel struct {
	ID              uint   `gorm:"primaryKey"`
	SessionID       string `gorm:"column:session_id;uniqueIndex;not null"`
	KBID            string `gorm:"column:kb_id;index;not null"`
	TotalMessages   int    `gorm:"not null"`
	Unread          bool
	PotentialClient bool
	LastUpdated     time.Time
	CreatedAt       time.Time
}

func (sessionModel) TableName() string { return "sessions" }

type messageModel struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"column:session_id;index:idx_session_seq,unique,priority:1;not null"`
	Seq       int    `gorm:"index:idx_session_seq,unique,priority:2;not null"`
	Role      string `gorm:"not null"`
	Content   string `gorm:"not null"`
	CreatedAt time.Time
}

func (messageModel) TableName() string { return "messages" }

// Manager persists sessions and their transcripts.
type Manager struct {
	db     *gorm.DB
	logger log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a session manager and migrates its schema.
func NewManager(db *gorm.DB, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&sessionModel{}, &messageModel{}); err != nil {
		return nil, fmt.Errorf("migrating session schema: %w", err)
	}
	return &Manager{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Create starts a new empty session bound to a knowledge base and returns
// its ID.
func (m *Manager) Create(ctx context.Context, kbID string) (string, error) {
	s := sessionModel{
		SessionID:   uuid.NewString(),
		KBID:        kbID,
		LastUpdated: time.Now().UTC(),
	}
	if err := m.db.WithContext(ctx).Create(&s).Error; err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	m.logger.Debug("session created", "session_id", s.SessionID, "kb_id", kbID)
	return s.SessionID, nil
}

// AppendExchange appends one user message and one assistant message as a
// single atomic unit: either both land in the transcript or neither does.
func (m *Manager) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	return m.append(ctx, sessionID,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)
}

// Append adds a single message to the transcript.
func (m *Manager) Append(ctx context.Context, sessionID, role, content string) error {
	return m.append(ctx, sessionID, Message{Role: role, Content: content})
}

func (m *Manager) append(ctx context.Context, sessionID string, msgs ...Message) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s sessionModel
		ferr := tx.Where("session_id = ?", sessionID).First(&s).Error
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
		}
		if ferr != nil {
			return ferr
		}

		now := time.Now().UTC()
		unread := s.Unread
		for i, msg := range msgs {
			if cerr := tx.Create(&messageModel{
				SessionID: sessionID,
				Seq:       s.TotalMessages + i,
				Role:      msg.Role,
				Content:   msg.Content,
				CreatedAt: now,
			}).Error; cerr != nil {
				return cerr
			}
			if msg.Role == RoleUser {
				unread = true
			}
		}

		return tx.Model(&s).Updates(map[string]any{
			"total_messages": s.TotalMessages + len(msgs),
			"unread":         unread,
			"last_updated":   now,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("appending to session %q: %w", sessionID, err)
	}
	return nil
}

// History returns the most recent max messages in chronological order. With
// max <= 0 the whole transcript is returned.
func (m *Manager) History(ctx context.Context, sessionID string, max int) ([]Message, error) {
	if _, err := m.summary(ctx, sessionID); err != nil {
		return nil, err
	}

	q := m.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq desc")
	if max > 0 {
		q = q.Limit(max)
	}

	var models []messageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading history for %q: %w", sessionID, err)
	}

	// Reverse the desc-limited window back into chronological order.
	msgs := make([]Message, len(models))
	for i, mm := range models {
		msgs[len(models)-1-i] = Message{
			Seq:       mm.Seq,
			Role:      mm.Role,
			Content:   mm.Content,
			CreatedAt: mm.CreatedAt,
		}
	}
	return msgs, nil
}

// Get returns a session's metadata.
func (m *Manager) Get(ctx context.Context, sessionID string) (Summary, error) {
	s, err := m.summary(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return toSummary(s), nil
}

// List returns all sessions of a knowledge base, most recently active first.
func (m *Manager) List(ctx context.Context, kbID string) ([]Summary, error) {
	var models []sessionModel
	if err := m.db.WithContext(ctx).
		Where("kb_id = ?", kbID).
		Order("last_updated desc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make([]Summary, len(models))
	for i, s := range models {
		out[i] = toSummary(s)
	}
	return out, nil
}

// MarkRead clears the unread flag.
func (m *Manager) MarkRead(ctx context.Context, sessionID string) error {
	return m.updateSession(ctx, sessionID, map[string]any{"unread": false})
}

// SetPotentialClient flags or unflags the session as a potential client.
func (m *Manager) SetPotentialClient(ctx context.Context, sessionID string, flag bool) error {
	return m.updateSession(ctx, sessionID, map[string]any{"potential_client": flag})
}

// Clear removes all messages but keeps the session record.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sessionModel{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{
				"total_messages": 0,
				"unread":         false,
				"last_updated":   time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
		}
		return tx.Where("session_id = ?", sessionID).Delete(&messageModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("clearing session %q: %w", sessionID, err)
	}

	m.logger.Debug("session cleared", "session_id", sessionID)
	return nil
}

// Delete removes the session and its transcript.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("session_id = ?", sessionID).Delete(&sessionModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
		}
		return tx.Where("session_id = ?", sessionID).Delete(&messageModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("deleting session %q: %w", sessionID, err)
	}
	m.dropSessionLock(sessionID)

	m.logger.Debug("session deleted", "session_id", sessionID)
	return nil
}

// DeleteByKB removes every session (and transcript) of a knowledge base.
func (m *Manager) DeleteByKB(ctx context.Context, kbID string) error {
	var ids []string
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ferr := tx.Model(&sessionModel{}).
			Where("kb_id = ?", kbID).
			Pluck("session_id", &ids).Error; ferr != nil {
			return ferr
		}
		if len(ids) == 0 {
			return nil
		}
		if derr := tx.Where("session_id IN ?", ids).Delete(&messageModel{}).Error; derr != nil {
			return derr
		}
		return tx.Where("kb_id = ?", kbID).Delete(&sessionModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("deleting sessions of KB %q: %w", kbID, err)
	}
	for _, id := range ids {
		m.dropSessionLock(id)
	}
	return nil
}

func (m *Manager) summary(ctx context.Context, sessionID string) (sessionModel, error) {
	var s sessionModel
	err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sessionModel{}, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return sessionModel{}, fmt.Errorf("loading session %q: %w", sessionID, err)
	}
	return s, nil
}

func (m *Manager) updateSession(ctx context.Context, sessionID string, updates map[string]any) error {
	res := m.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating session %q: %w", sessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}

// dropSessionLock forgets a deleted session's mutex so the map does not grow
// without bound. A goroutine still waiting on the old mutex proceeds against
// a session that no longer exists and gets ErrNotFound.
func (m *Manager) dropSessionLock(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionID)
}

func toSummary(s sessionModel) Summary {
	return Summary{
		SessionID:       s.SessionID,
		KBID:            s.KBID,
		TotalMessages:   s.TotalMessages,
		LastUpdated:     s.LastUpdated,
		Unread:          s.Unread,
		PotentialClient: s.PotentialClient,
		CreatedAt:       s.CreatedAt,
	}
}

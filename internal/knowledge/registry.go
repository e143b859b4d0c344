package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// DefaultKBName is the display name given to an account's default KB.
const DefaultKBName = "Default knowledge base"

type kbModel struct {
	ID             uint   `gorm:"primaryKey"`
	KBID           string `gorm:"column:kb_id;uniqueIndex;not null"`
	Account        string `gorm:"index;not null"`
	Name           string `gorm:"not null"`
	PasswordHash   string
	AnalyzeClients bool
	IsDefault      bool
	CreatedAt      time.Time
}

func (kbModel) TableName() string { return "knowledge_bases" }

// accountStateModel tracks the "current KB" pointer per account.
type accountStateModel struct {
	Account     string `gorm:"primaryKey"`
	CurrentKBID string `gorm:"column:current_kb_id;not null"`
	UpdatedAt   time.Time
}

func (accountStateModel) TableName() string { return "account_state" }

// Registry manages knowledge base lifecycle and per-account selection.
type Registry struct {
	db     *gorm.DB
	logger log.Logger
}

// NewRegistry creates a registry and migrates its schema.
func NewRegistry(db *gorm.DB, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&kbModel{}, &accountStateModel{}); err != nil {
		return nil, fmt.Errorf("migrating knowledge base schema: %w", err)
	}
	return &Registry{db: db, logger: logger}, nil
}

// EnsureDefault returns the account's default KB, creating it (and the
// current-KB pointer) on first use.
func (r *Registry) EnsureDefault(ctx context.Context, account string) (Base, error) {
	var out Base
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m kbModel
		err := tx.Where("account = ? AND is_default = ?", account, true).First(&m).Error
		if err == nil {
			out = toBase(m)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		m = kbModel{
			KBID:           uuid.NewString(),
			Account:        account,
			Name:           DefaultKBName,
			AnalyzeClients: true,
			IsDefault:      true,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if err := tx.Save(&accountStateModel{
			Account:     account,
			CurrentKBID: m.KBID,
		}).Error; err != nil {
			return err
		}
		out = toBase(m)
		r.logger.Info("default knowledge base created", "account", account, "kb_id", m.KBID)
		return nil
	})
	if err != nil {
		return Base{}, fmt.Errorf("ensuring default KB: %w", err)
	}
	return out, nil
}

// Create adds a new knowledge base for the account. The password is optional;
// when set, chat users can switch to this KB by sending the password.
func (r *Registry) Create(ctx context.Context, account, name, password string) (Base, error) {
	if name == "" {
		return Base{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	if _, err := r.EnsureDefault(ctx, account); err != nil {
		return Base{}, err
	}

	m := kbModel{
		KBID:           uuid.NewString(),
		Account:        account,
		Name:           name,
		PasswordHash:   hashPassword(password),
		AnalyzeClients: true,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return Base{}, fmt.Errorf("creating KB: %w", err)
	}

	r.logger.Info("knowledge base created", "account", account, "kb_id", m.KBID, "name", name)
	return toBase(m), nil
}

// Get returns a KB owned by the account.
func (r *Registry) Get(ctx context.Context, account, kbID string) (Base, error) {
	var m kbModel
	err := r.db.WithContext(ctx).
		Where("account = ? AND kb_id = ?", account, kbID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Base{}, fmt.Errorf("knowledge base %q: %w", kbID, ErrNotFound)
	}
	if err != nil {
		return Base{}, fmt.Errorf("getting KB %q: %w", kbID, err)
	}
	return toBase(m), nil
}

// List returns all KBs of the account, default first, then by creation time.
func (r *Registry) List(ctx context.Context, account string) ([]Base, error) {
	if _, err := r.EnsureDefault(ctx, account); err != nil {
		return nil, err
	}

	var models []kbModel
	if err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Order("is_default desc, created_at asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing KBs: %w", err)
	}

	bases := make([]Base, len(models))
	for i, m := range models {
		bases[i] = toBase(m)
	}
	return bases, nil
}

// Rename changes the display name of a KB.
func (r *Registry) Rename(ctx context.Context, account, kbID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	return r.updateKB(ctx, account, kbID, map[string]any{"name": name})
}

// SetPassword replaces the KB password. An empty password removes it.
func (r *Registry) SetPassword(ctx context.Context, account, kbID, password string) error {
	return r.updateKB(ctx, account, kbID, map[string]any{"password_hash": hashPassword(password)})
}

// SetAnalyzeClients toggles potential-client analysis for the KB's sessions.
func (r *Registry) SetAnalyzeClients(ctx context.Context, account, kbID string, enabled bool) error {
	return r.updateKB(ctx, account, kbID, map[string]any{"analyze_clients": enabled})
}

// CheckPassword reports whether the password matches the KB's password.
// KBs without a password never match.
func (r *Registry) CheckPassword(ctx context.Context, account, kbID, password string) (bool, error) {
	var m kbModel
	err := r.db.WithContext(ctx).
		Where("account = ? AND kb_id = ?", account, kbID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("knowledge base %q: %w", kbID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("checking password: %w", err)
	}
	return m.PasswordHash != "" && m.PasswordHash == hashPassword(password), nil
}

// FindByPassword locates the account's KB guarded by the given password.
// Returns ErrNotFound when no KB matches.
func (r *Registry) FindByPassword(ctx context.Context, account, password string) (Base, error) {
	if password == "" {
		return Base{}, fmt.Errorf("knowledge base by password: %w", ErrNotFound)
	}
	var m kbModel
	err := r.db.WithContext(ctx).
		Where("account = ? AND password_hash = ?", account, hashPassword(password)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Base{}, fmt.Errorf("knowledge base by password: %w", ErrNotFound)
	}
	if err != nil {
		return Base{}, fmt.Errorf("finding KB by password: %w", err)
	}
	return toBase(m), nil
}

// Current returns the account's currently selected KB, falling back to the
// default KB when the pointer is missing or dangling.
func (r *Registry) Current(ctx context.Context, account string) (Base, error) {
	def, err := r.EnsureDefault(ctx, account)
	if err != nil {
		return Base{}, err
	}

	var state accountStateModel
	err = r.db.WithContext(ctx).
		Where("account = ?", account).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return Base{}, fmt.Errorf("loading account state: %w", err)
	}

	kb, err := r.Get(ctx, account, state.CurrentKBID)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return kb, err
}

// Select makes kbID the account's current KB.
func (r *Registry) Select(ctx context.Context, account, kbID string) error {
	if _, err := r.Get(ctx, account, kbID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(&accountStateModel{
		Account:     account,
		CurrentKBID: kbID,
	}).Error; err != nil {
		return fmt.Errorf("selecting KB: %w", err)
	}
	r.logger.Debug("current KB switched", "account", account, "kb_id", kbID)
	return nil
}

// SelectDefault switches the account back to its default KB and returns it.
func (r *Registry) SelectDefault(ctx context.Context, account string) (Base, error) {
	def, err := r.EnsureDefault(ctx, account)
	if err != nil {
		return Base{}, err
	}
	if err := r.Select(ctx, account, def.KBID); err != nil {
		return Base{}, err
	}
	return def, nil
}

// Delete removes a KB and its documents. Deleting the default KB is
// rejected. If the KB is currently selected, the current-KB pointer falls
// back to the default KB in the same transaction, so no state with a
// dangling pointer is ever visible. Reports whether the fallback happened.
func (r *Registry) Delete(ctx context.Context, account, kbID string) (switchedToDefault bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m kbModel
		ferr := tx.Where("account = ? AND kb_id = ?", account, kbID).First(&m).Error
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("knowledge base %q: %w", kbID, ErrNotFound)
		}
		if ferr != nil {
			return ferr
		}
		if m.IsDefault {
			return ErrDeleteDefault
		}

		var def kbModel
		if ferr := tx.Where("account = ? AND is_default = ?", account, true).First(&def).Error; ferr != nil {
			return fmt.Errorf("locating default KB: %w", ferr)
		}

		var state accountStateModel
		ferr = tx.Where("account = ?", account).First(&state).Error
		if ferr != nil && !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return ferr
		}
		if ferr == nil && state.CurrentKBID == kbID {
			state.CurrentKBID = def.KBID
			if serr := tx.Save(&state).Error; serr != nil {
				return serr
			}
			switchedToDefault = true
		}

		if derr := tx.Where("kb_id = ?", kbID).Delete(&documentModel{}).Error; derr != nil {
			return derr
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		return false, err
	}

	r.logger.Info("knowledge base deleted",
		"account", account, "kb_id", kbID, "switched_to_default", switchedToDefault)
	return switchedToDefault, nil
}

func (r *Registry) updateKB(ctx context.Context, account, kbID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&kbModel{}).
		Where("account = ? AND kb_id = ?", account, kbID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating KB %q: %w", kbID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("knowledge base %q: %w", kbID, ErrNotFound)
	}
	return nil
}

// hashPassword hashes KB passwords for storage. Empty passwords hash to the
// empty string so "no password" is representable.
func hashPassword(password string) string {
	if password == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func toBase(m kbModel) Base {
	return Base{
		KBID:           m.KBID,
		Account:        m.Account,
		Name:           m.Name,
		AnalyzeClients: m.AnalyzeClients,
		Default:        m.IsDefault,
		HasPassword:    m.PasswordHash != "",
		CreatedAt:      m.CreatedAt,
	}
}

package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// documentModel is the database schema for a Q&A document.
// (kb_id, doc_id) is the stable external identity; the gorm primary key is
// internal only.
type documentModel struct {
	ID        uint   `gorm:"primaryKey"`
	KBID      string `gorm:"column:kb_id;index:idx_kb_doc,unique,priority:1;not null"`
	DocID     int64  `gorm:"column:doc_id;index:idx_kb_doc,unique,priority:2;not null"`
	Question  string `gorm:"not null"`
	Answer    string `gorm:"not null"`
	CreatedAt time.Time
}

func (documentModel) TableName() string { return "documents" }

// Store persists Q&A documents per knowledge base.
type Store struct {
	db     *gorm.DB
	logger log.Logger
}

// NewStore creates a document store and migrates its schema.
func NewStore(db *gorm.DB, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := db.AutoMigrate(&documentModel{}); err != nil {
		return nil, fmt.Errorf("migrating documents schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Add validates and stores a new document, returning its per-KB ordinal ID.
func (s *Store) Add(ctx context.Context, kbID, question, answer string) (int64, error) {
	if err := validateQA(question, answer); err != nil {
		return 0, err
	}

	var docID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Next ordinal for this KB. IDs are never reused after deletes,
		// so max+1 keeps existing IDs stable.
		var maxID int64
		if err := tx.Model(&documentModel{}).
			Where("kb_id = ?", kbID).
			Select("COALESCE(MAX(doc_id), -1)").
			Scan(&maxID).Error; err != nil {
			return err
		}
		docID = maxID + 1

		return tx.Create(&documentModel{
			KBID:     kbID,
			DocID:    docID,
			Question: question,
			Answer:   answer,
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("adding document: %w", err)
	}

	s.logger.Debug("document added", "kb_id", kbID, "doc_id", docID)
	return docID, nil
}

// Get returns a document by its per-KB ID.
func (s *Store) Get(ctx context.Context, kbID string, docID int64) (Document, error) {
	var m documentModel
	err := s.db.WithContext(ctx).
		Where("kb_id = ? AND doc_id = ?", kbID, docID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("getting document %d: %w", docID, err)
	}
	return toDocument(m), nil
}

// Update replaces the question and answer of an existing document. The ID is
// unchanged.
func (s *Store) Update(ctx context.Context, kbID string, docID int64, question, answer string) error {
	if err := validateQA(question, answer); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&documentModel{}).
		Where("kb_id = ? AND doc_id = ?", kbID, docID).
		Updates(map[string]any{"question": question, "answer": answer})
	if res.Error != nil {
		return fmt.Errorf("updating document %d: %w", docID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}

	s.logger.Debug("document updated", "kb_id", kbID, "doc_id", docID)
	return nil
}

// Delete removes a document. Remaining document IDs are untouched.
func (s *Store) Delete(ctx context.Context, kbID string, docID int64) error {
	res := s.db.WithContext(ctx).
		Where("kb_id = ? AND doc_id = ?", kbID, docID).
		Delete(&documentModel{})
	if res.Error != nil {
		return fmt.Errorf("deleting document %d: %w", docID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}

	s.logger.Debug("document deleted", "kb_id", kbID, "doc_id", docID)
	return nil
}

// List returns one page of documents in insertion order, optionally filtered
// by a case-insensitive substring match over question and answer. A page
// beyond the last returns an empty page, not an error.
func (s *Store) List(ctx context.Context, kbID string, page int, search string) ([]Document, Pagination, error) {
	if page < 1 {
		page = 1
	}

	all, err := s.ListAll(ctx, kbID)
	if err != nil {
		return nil, Pagination{}, err
	}

	if search != "" {
		needle := strings.ToLower(search)
		filtered := make([]Document, 0, len(all))
		for _, d := range all {
			if strings.Contains(strings.ToLower(d.Question), needle) ||
				strings.Contains(strings.ToLower(d.Answer), needle) {
				filtered = append(filtered, d)
			}
		}
		all = filtered
	}

	total := len(all)
	totalPages := (total + PageSize - 1) / PageSize
	p := Pagination{
		CurrentPage:    page,
		TotalPages:     totalPages,
		TotalDocuments: total,
		PageSize:       PageSize,
	}

	start := (page - 1) * PageSize
	if start >= total {
		return []Document{}, p, nil
	}
	end := start + PageSize
	if end > total {
		end = total
	}
	return all[start:end], p, nil
}

// ListAll returns every document of the KB in insertion order. Used for
// index rebuilds and fingerprinting.
func (s *Store) ListAll(ctx context.Context, kbID string) ([]Document, error) {
	var models []documentModel
	if err := s.db.WithContext(ctx).
		Where("kb_id = ?", kbID).
		Order("doc_id asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	docs := make([]Document, len(models))
	for i, m := range models {
		docs[i] = toDocument(m)
	}
	return docs, nil
}

// Count returns the number of documents in the KB.
func (s *Store) Count(ctx context.Context, kbID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&documentModel{}).
		Where("kb_id = ?", kbID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(n), nil
}

// Fingerprint computes the content digest of the KB: SHA-256 over the ordered
// document blocks plus the document count. The vector index stores the
// fingerprint it was built from; any difference means the index is stale.
func (s *Store) Fingerprint(ctx context.Context, kbID string) (string, error) {
	docs, err := s.ListAll(ctx, kbID)
	if err != nil {
		return "", err
	}
	return FingerprintDocuments(docs), nil
}

// FingerprintDocuments computes the digest over an already-loaded document
// set. Exposed so the synchronizer can fingerprint the exact snapshot it
// embeds.
func FingerprintDocuments(docs []Document) string {
	h := sha256.New()
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(docs)))
	h.Write(count[:])
	for _, d := range docs {
		h.Write([]byte(d.Block()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toDocument(m documentModel) Document {
	return Document{
		ID:        m.DocID,
		Question:  m.Question,
		Answer:    m.Answer,
		CreatedAt: m.CreatedAt,
	}
}

package knowledge

import (
	"errors"
	"fmt"
	"time"
)

// Content caps enforced on every add/update.
const (
	MaxQuestionLen = 250
	MaxAnswerLen   = 2500
)

// PageSize is the fixed number of documents per page in [Store.List].
const PageSize = 10

// Sentinel errors for knowledge operations. Check with errors.Is().
var (
	// ErrNotFound indicates the referenced document or knowledge base
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input (empty or oversized fields).
	ErrValidation = errors.New("validation failed")

	// ErrDeleteDefault indicates an attempt to delete the default KB.
	ErrDeleteDefault = errors.New("cannot delete the default knowledge base")
)

// Document is a single question/answer pair. ID is a per-KB ordinal assigned
// at creation; it is stable across edits and survives deletion of other
// documents (surviving IDs are never reassigned).
type Document struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Block renders the document in the canonical form used both for embedding
// and for fingerprinting. Keeping the two identical guarantees that any
// content change is visible to the staleness check.
func (d Document) Block() string {
	return "Q: " + d.Question + "\nA: " + d.Answer
}

// Pagination describes one page of a document listing.
type Pagination struct {
	CurrentPage    int `json:"current_page"`
	TotalPages     int `json:"total_pages"`
	TotalDocuments int `json:"total_documents"`
	PageSize       int `json:"page_size"`
}

// Base is a knowledge base record. Exactly one Base per account has
// Default=true; the default KB cannot be deleted.
type Base struct {
	KBID           string    `json:"kb_id"`
	Account        string    `json:"account"`
	Name           string    `json:"name"`
	AnalyzeClients bool      `json:"analyze_clients"`
	Default        bool      `json:"default"`
	HasPassword    bool      `json:"has_password"`
	CreatedAt      time.Time `json:"created_at"`
}

func validateQA(question, answer string) error {
	if question == "" {
		return fmt.Errorf("%w: question must not be empty", ErrValidation)
	}
	if answer == "" {
		return fmt.Errorf("%w: answer must not be empty", ErrValidation)
	}
	if len([]rune(question)) > MaxQuestionLen {
		return fmt.Errorf("%w: question exceeds %d characters", ErrValidation, MaxQuestionLen)
	}
	if len([]rune(answer)) > MaxAnswerLen {
		return fmt.Errorf("%w: answer exceeds %d characters", ErrValidation, MaxAnswerLen)
	}
	return nil
}

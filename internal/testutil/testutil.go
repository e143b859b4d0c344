// Package testutil provides shared test doubles and helpers.
package testutil

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/knowbot-ai/knowbot/internal/llm"
)

// OpenTestDB opens an isolated in-memory SQLite database.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A unique shared-cache name keeps the database alive across the
	// connection pool while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Embedder is a deterministic in-memory embedder. Each distinct text maps to
// a fixed pseudo-random vector, so identical texts always land on the same
// point and exact-text queries rank their document first.
type Embedder struct {
	Dim int   // vector dimensionality, default 8
	Err error // returned by Embed when set

	mu    sync.Mutex
	calls int
	texts int
}

// Embed implements embed.Embedder.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}

	dim := e.Dim
	if dim <= 0 {
		dim = 8
	}

	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = float32(sum[j%len(sum)]) + 1
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Calls returns how many Embed invocations were made.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Texts returns how many texts were embedded in total.
func (e *Embedder) Texts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.texts
}

// Generator is a canned llm.Generator.
type Generator struct {
	Answer string
	Usage  llm.Usage
	Err    error

	mu           sync.Mutex
	calls        int
	lastModel    string
	lastMessages []llm.Message
}

// Generate implements llm.Generator.
func (g *Generator) Generate(_ context.Context, model string, messages []llm.Message) (string, llm.Usage, error) {
	g.mu.Lock()
	g.calls++
	g.lastModel = model
	g.lastMessages = append([]llm.Message(nil), messages...)
	g.mu.Unlock()

	if g.Err != nil {
		return "", llm.Usage{}, g.Err
	}
	answer := g.Answer
	if answer == "" {
		answer = "canned answer"
	}
	return answer, g.Usage, nil
}

// Calls returns how many completions were requested.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// LastModel returns the model of the most recent call.
func (g *Generator) LastModel() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastModel
}

// LastMessages returns the messages of the most recent call.
func (g *Generator) LastMessages() []llm.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastMessages
}

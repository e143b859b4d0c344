// Package chat orchestrates one question/answer turn.
//
// A turn runs stop check, retrieval, prompt composition, generation, usage
// reporting and transcript persistence in that order. Sessions are created
// lazily: a session ID is allocated only when the first turn succeeds, so
// failed turns leave no empty sessions behind. Retrieval or generation
// failures fail the whole turn; a degraded answer without knowledge base
// context is never produced.
package chat

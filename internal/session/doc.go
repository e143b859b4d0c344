// Package session persists chat conversations.
//
// A session belongs to one knowledge base and holds an ordered message
// transcript plus bookkeeping metadata (message count, last activity, unread
// flag, potential-client flag). Messages are append-only; a session can be
// cleared or deleted as a whole but individual messages are never edited.
//
// Appends for the same session are serialized by a per-session lock on top
// of the database transaction, so sequence numbers are dense and the
// total_messages counter always equals the number of stored messages.
package session

// Package knowledge owns the canonical Q&A content of the system: the
// per-knowledge-base document store and the knowledge base registry.
//
// A knowledge base (KB) is a named collection of question/answer documents
// with its own settings, sessions and vector index. The [Store] handles
// document CRUD, pagination and substring search; the [Registry] manages KB
// lifecycle, the per-account default KB and the account's "current KB"
// pointer.
//
// # Index freshness
//
// The vector index is synchronized against store content by fingerprint
// (see [Store.Fingerprint]). Because the fingerprint is derived from the
// stored content itself, every committed mutation implicitly invalidates the
// index; there is no separate invalidation step that could be lost in a
// crash between "document written" and "index marked stale".
//
// # Concurrency
//
// Store and Registry are safe for concurrent use. All state lives in the
// database; transactions guard multi-row updates such as the current-KB
// pointer fallback on deletion.
package knowledge

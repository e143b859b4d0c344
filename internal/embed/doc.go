// Package embed turns text into vectors for semantic retrieval.
//
// The [Embedder] interface is the seam between retrieval and the embedding
// provider. [OpenAI] is the production implementation; [Cache] wraps any
// Embedder with a content-addressed in-memory cache so unchanged documents
// are never re-embedded across index rebuilds.
package embed

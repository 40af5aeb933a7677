// Package retrieval implements the optional retrieval boundary used to
// ground design proposals in reference projects.
//
// Index is a SQLite FTS5 full-text index over a corpus of project READMEs
// ranked with bm25. Nop is the disabled retriever. Neither ever fails a
// query: an unavailable backend yields no documents.
package retrieval

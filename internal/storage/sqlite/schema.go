// Package sqlite provides a single-file SQLite implementation of the
// persistence port (C2), used for offline/local operation and as the
// realistic backend for integration tests that don't need a running
// PostgreSQL instance.
package sqlite

// Schema mirrors the PostgreSQL relations in postgres.Schema, adapted
// to SQLite's type affinities: arrays become JSON-encoded TEXT, and
// there is no native vector column — embeddings are stored as a BLOB
// of little-endian float32s and compared in Go (see similarity.go).
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id              TEXT PRIMARY KEY,
    agent_id        TEXT NOT NULL,
    content         TEXT NOT NULL,

    memory_type     TEXT NOT NULL DEFAULT 'episodic',
    topics          TEXT NOT NULL DEFAULT '[]',
    importance      REAL NOT NULL DEFAULT 0.5,
    stability       REAL NOT NULL DEFAULT 0.3,

    created_at      TEXT NOT NULL,
    event_date      TEXT,
    expires_at      TEXT,
    last_accessed   TEXT NOT NULL,
    access_count    INTEGER NOT NULL DEFAULT 0,

    source_channel  TEXT,
    source_session  TEXT,

    is_summary      INTEGER NOT NULL DEFAULT 0,
    summarizes      TEXT NOT NULL DEFAULT '[]',
    is_deleted      INTEGER NOT NULL DEFAULT 0,

    embedding       BLOB
);

CREATE INDEX IF NOT EXISTS idx_memories_agent_id ON memories(agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_memory_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_active ON memories(agent_id) WHERE is_deleted = 0;

CREATE TABLE IF NOT EXISTS memory_links (
    source_id   TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    target_id   TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    strength    REAL NOT NULL DEFAULT 0.5,
    link_type   TEXT NOT NULL DEFAULT 'association',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    PRIMARY KEY (source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id, strength DESC);
`

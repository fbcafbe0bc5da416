// Package postgres provides the PostgreSQL implementation of the
// persistence port (C2).
package postgres

// Schema contains the idempotent DDL for the two logical relations
// named in §6 ("Persisted state layout"): memories and memory_links,
// plus their secondary indexes. Safe to run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    agent_id        VARCHAR(50) NOT NULL,
    content         TEXT NOT NULL,

    memory_type     TEXT NOT NULL DEFAULT 'episodic'
                        CHECK (memory_type IN ('episodic', 'semantic', 'procedural')),
    topics          TEXT[] NOT NULL DEFAULT '{}',
    importance      FLOAT NOT NULL DEFAULT 0.5 CHECK (importance BETWEEN 0 AND 1),
    stability       FLOAT NOT NULL DEFAULT 0.3 CHECK (stability BETWEEN 0 AND 1),

    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    event_date      TIMESTAMPTZ,
    expires_at      TIMESTAMPTZ,
    last_accessed   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    access_count    INTEGER NOT NULL DEFAULT 0,

    source_channel  TEXT,
    source_session  TEXT,

    is_summary      BOOLEAN NOT NULL DEFAULT FALSE,
    summarizes      TEXT[] NOT NULL DEFAULT '{}',
    is_deleted      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_memories_agent_id ON memories(agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_memory_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_topics ON memories USING GIN(topics);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_active ON memories(agent_id) WHERE is_deleted = FALSE;

-- Symmetric associative edges: every logical link is two rows, one per
-- direction, kept in lockstep by upsert_link (§4.6).
CREATE TABLE IF NOT EXISTS memory_links (
    source_id   UUID NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    target_id   UUID NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    strength    FLOAT NOT NULL DEFAULT 0.5 CHECK (strength BETWEEN 0 AND 1),
    link_type   TEXT NOT NULL DEFAULT 'association',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id, strength DESC);
`

// MigrationPgvector adds the embedding column and its approximate
// nearest-neighbor index once the pgvector extension is confirmed
// available (NewStore probes for it and applies this conditionally).
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memories' AND column_name = 'embedding'
    ) THEN
        ALTER TABLE memories ADD COLUMN embedding vector(1536);
    END IF;
END
$$;

DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_indexes WHERE indexname = 'idx_memories_embedding_cosine'
    ) THEN
        IF EXISTS (SELECT 1 FROM memories WHERE embedding IS NOT NULL LIMIT 1) THEN
            EXECUTE 'CREATE INDEX idx_memories_embedding_cosine ON memories USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
        END IF;
    END IF;
END
$$;
`

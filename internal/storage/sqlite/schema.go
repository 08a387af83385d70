package sqlite

const schema = `
-- Note metadata: one row per indexed note, keyed by tenant+path.
-- version is the authoritative optimistic-concurrency counter.
CREATE TABLE IF NOT EXISTS note_metadata (
    tenant TEXT NOT NULL,
    path TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    title TEXT NOT NULL,
    created TEXT NOT NULL,
    updated TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    title_slug TEXT NOT NULL DEFAULT '',
    path_slug TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (tenant, path)
);

CREATE INDEX IF NOT EXISTS idx_note_metadata_title_slug ON note_metadata(tenant, title_slug);
CREATE INDEX IF NOT EXISTS idx_note_metadata_path_slug ON note_metadata(tenant, path_slug);
CREATE INDEX IF NOT EXISTS idx_note_metadata_updated ON note_metadata(tenant, updated);

-- Full-text rows. A plain FTS5 table (not external-content): the
-- indexer deletes and reinserts the row in the same transaction as
-- note_metadata, so the two can never drift apart.
CREATE VIRTUAL TABLE IF NOT EXISTS note_fts USING fts5(
    title,
    body,
    tenant UNINDEXED,
    path UNINDEXED,
    tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS note_tags (
    tenant TEXT NOT NULL,
    path TEXT NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (tenant, path, tag)
);

CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tenant, tag);

CREATE TABLE IF NOT EXISTS note_links (
    tenant TEXT NOT NULL,
    source_path TEXT NOT NULL,
    link_text TEXT NOT NULL,
    link_slug TEXT NOT NULL DEFAULT '',
    target_path TEXT,
    is_resolved INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (tenant, source_path, link_text)
);

CREATE INDEX IF NOT EXISTS idx_note_links_target ON note_links(tenant, target_path);
CREATE INDEX IF NOT EXISTS idx_note_links_slug ON note_links(tenant, link_slug);

CREATE TABLE IF NOT EXISTS index_health (
    tenant TEXT PRIMARY KEY,
    note_count INTEGER NOT NULL DEFAULT 0,
    last_full_rebuild TEXT,
    last_incremental_update TEXT
);

-- Oracle conversation trees. Nodes cascade with their tree.
CREATE TABLE IF NOT EXISTS context_trees (
    root_id TEXT PRIMARY KEY,
    tenant TEXT NOT NULL,
    project TEXT NOT NULL,
    current_node_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    last_activity TEXT NOT NULL,
    node_count INTEGER NOT NULL DEFAULT 1,
    max_nodes INTEGER NOT NULL DEFAULT 30,
    label TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_context_trees_tenant ON context_trees(tenant, project, last_activity);

CREATE TABLE IF NOT EXISTS context_nodes (
    id TEXT PRIMARY KEY,
    root_id TEXT NOT NULL,
    parent_id TEXT,
    tenant TEXT NOT NULL,
    project TEXT NOT NULL,
    created_at TEXT NOT NULL,
    question TEXT NOT NULL DEFAULT '',
    answer TEXT NOT NULL DEFAULT '',
    tool_calls TEXT NOT NULL DEFAULT '[]',
    tokens_used INTEGER NOT NULL DEFAULT 0,
    model_used TEXT NOT NULL DEFAULT '',
    label TEXT NOT NULL DEFAULT '',
    is_checkpoint INTEGER NOT NULL DEFAULT 0,
    is_root INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (root_id) REFERENCES context_trees(root_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_context_nodes_root ON context_nodes(root_id);

-- Append-only project threads used by the thread_* tools.
CREATE TABLE IF NOT EXISTS threads (
    id TEXT PRIMARY KEY,
    tenant TEXT NOT NULL,
    project TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL,
    last_activity TEXT NOT NULL,
    entry_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE (tenant, project, name)
);

CREATE TABLE IF NOT EXISTS thread_entries (
    thread_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    role TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (thread_id, seq),
    FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS thread_fts USING fts5(
    content,
    thread_id UNINDEXED,
    seq UNINDEXED,
    tokenize='porter unicode61'
);

-- Applied migrations, by name.
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

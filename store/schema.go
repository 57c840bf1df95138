package store

// Schema is the DDL for the replay tables.
const Schema = `
-- Full snapshots. tree is the JSON of recorder.ViewTreeSnapshot.
CREATE TABLE IF NOT EXISTS snapshots (
    id             TEXT PRIMARY KEY,
    page_id        TEXT NOT NULL,
    url            TEXT NOT NULL DEFAULT '',
    application_id TEXT NOT NULL DEFAULT '',
    session_id     TEXT NOT NULL DEFAULT '',
    view_id        TEXT NOT NULL DEFAULT '',
    node_count     INTEGER NOT NULL DEFAULT 0,
    taken_at       INTEGER NOT NULL,
    tree           TEXT NOT NULL,
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_page ON snapshots(page_id, taken_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, taken_at DESC);

-- Diff batches applied on top of a snapshot, in seq order.
CREATE TABLE IF NOT EXISTS batches (
    id          TEXT PRIMARY KEY,
    snapshot_id TEXT NOT NULL,
    page_id     TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    taken_at    INTEGER NOT NULL,
    records     TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_batches_snapshot ON batches(snapshot_id, seq);

-- Latest snapshot per page.
CREATE TABLE IF NOT EXISTS pages (
    page_id     TEXT PRIMARY KEY,
    snapshot_id TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);
`

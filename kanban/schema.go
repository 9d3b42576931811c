package kanban

const schema = `
CREATE TABLE IF NOT EXISTS boards (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS lists (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	board_id INTEGER NOT NULL REFERENCES boards(id),
	name     TEXT NOT NULL,
	position INTEGER NOT NULL,
	UNIQUE(board_id, name)
);

CREATE TABLE IF NOT EXISTS cards (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	list_id                 INTEGER NOT NULL REFERENCES lists(id),
	title                   TEXT NOT NULL,
	description             TEXT NOT NULL DEFAULT '',
	position                INTEGER NOT NULL DEFAULT 0,
	labels                  TEXT NOT NULL DEFAULT '[]',
	being_processed         INTEGER NOT NULL DEFAULT 0,
	processing_started_at   DATETIME,
	processing_job_id       TEXT NOT NULL DEFAULT '',
	processing_step         INTEGER NOT NULL DEFAULT 0,
	processing_total_steps  INTEGER NOT NULL DEFAULT 0,
	issue_number            TEXT NOT NULL DEFAULT '',
	issue_url               TEXT NOT NULL DEFAULT '',
	author                  TEXT NOT NULL DEFAULT '',
	pr_url                  TEXT NOT NULL DEFAULT '',
	erro_reason             TEXT NOT NULL DEFAULT '',
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_issue_number ON cards(issue_number);

CREATE TABLE IF NOT EXISTS card_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	card_id      INTEGER NOT NULL REFERENCES cards(id),
	event        TEXT NOT NULL,
	from_list_id INTEGER,
	to_list_id   INTEGER,
	metadata     TEXT NOT NULL DEFAULT '',
	occurred_at  DATETIME NOT NULL
);
`

package core

type migration struct {
	version int
	sql     string
}

// migrations holds the full schema history. Each entry runs once, in order,
// inside its own transaction (see DB.Migrate). Splitting tables roughly
// follows the BMC-per-entity layout: one migration per entity group.
var migrations = []migration{
	{1, `
CREATE TABLE products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	human_key TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE product_projects (
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	PRIMARY KEY (product_id, project_id)
);
`},
	{2, `
CREATE TABLE agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	program TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	task_description TEXT NOT NULL DEFAULT '',
	contact_policy TEXT NOT NULL DEFAULT 'manual',
	inception_ts TEXT NOT NULL DEFAULT (datetime('now')),
	last_active_ts TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, name)
);
`},
	{3, `
CREATE TABLE messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	sender_id INTEGER NOT NULL REFERENCES agents(id),
	thread_id TEXT,
	subject TEXT NOT NULL,
	body_md TEXT NOT NULL DEFAULT '',
	importance TEXT NOT NULL DEFAULT 'normal',
	ack_required INTEGER NOT NULL DEFAULT 0,
	created_ts TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX idx_messages_project_thread ON messages(project_id, thread_id);
CREATE INDEX idx_messages_project_created ON messages(project_id, created_ts);

CREATE TABLE message_recipients (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	agent_id INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	kind TEXT NOT NULL CHECK (kind IN ('to', 'cc', 'bcc')),
	read_ts TEXT,
	ack_ts TEXT,
	PRIMARY KEY (message_id, agent_id)
);

CREATE INDEX idx_recipients_agent ON message_recipients(agent_id, read_ts);
`},
	{4, `
CREATE TABLE file_reservations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	path_pattern TEXT NOT NULL,
	exclusive INTEGER NOT NULL DEFAULT 1,
	reason TEXT NOT NULL DEFAULT '',
	created_ts TEXT NOT NULL DEFAULT (datetime('now')),
	expires_ts TEXT NOT NULL,
	released_ts TEXT
);

CREATE INDEX idx_reservations_active ON file_reservations(project_id, released_ts);
`},
	{5, `
CREATE TABLE agent_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_agent_id INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	to_agent_id INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	approved INTEGER NOT NULL DEFAULT 0,
	requested_ts TEXT NOT NULL DEFAULT (datetime('now')),
	expires_ts TEXT,
	UNIQUE (from_agent_id, to_agent_id)
);

CREATE TABLE agent_capabilities (
	agent_id INTEGER PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
	max_inbox_messages INTEGER NOT NULL DEFAULT 500,
	max_attachment_bytes INTEGER NOT NULL DEFAULT 10485760,
	can_broadcast INTEGER NOT NULL DEFAULT 0
);
`},
	{6, `
CREATE TABLE macro_defs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	steps_json TEXT NOT NULL DEFAULT '[]',
	builtin INTEGER NOT NULL DEFAULT 0,
	UNIQUE (project_id, name)
);

CREATE TABLE attachments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	created_ts TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE build_slots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	label TEXT NOT NULL DEFAULT '',
	started_ts TEXT NOT NULL DEFAULT (datetime('now')),
	finished_ts TEXT,
	status TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE tool_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	tool_name TEXT NOT NULL,
	agent_id INTEGER REFERENCES agents(id),
	duration_ms INTEGER NOT NULL,
	success INTEGER NOT NULL DEFAULT 1,
	recorded_ts TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX idx_tool_metrics_project_tool ON tool_metrics(project_id, tool_name);
`},
}

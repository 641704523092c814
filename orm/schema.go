package orm

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		entity_type TEXT NOT NULL,
		id          TEXT NOT NULL,
		fields      TEXT NOT NULL,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL,
		PRIMARY KEY (entity_type, id)
	)`,
	`CREATE TABLE IF NOT EXISTS changelog (
		id          TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		operation   TEXT NOT NULL,
		event_id    TEXT NOT NULL,
		snapshot    TEXT NOT NULL,
		taken_at    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS changelog_entity ON changelog (entity_type, entity_id)`,
	`CREATE TABLE IF NOT EXISTS signal_failures (
		id        TEXT PRIMARY KEY,
		task      TEXT NOT NULL,
		task_key  TEXT NOT NULL,
		error     TEXT NOT NULL,
		failed_at BIGINT NOT NULL
	)`,
}

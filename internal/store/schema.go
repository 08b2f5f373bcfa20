package store

// schemaVersionV1 keyed fits by id only.
const schemaVersionV1 = 1

// schemaVersionV2 stores the key parts alongside the payload so entries can
// be listed and invalidated per dataset.
const schemaVersionV2 = 2

var schemaV2 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS fits (
	id           TEXT PRIMARY KEY,
	dataset_hash TEXT NOT NULL,
	spec_hash    TEXT NOT NULL,
	seed         TEXT NOT NULL, -- decimal uint64
	run_id       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	payload      BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fits_dataset ON fits(dataset_hash);
`

// migrationV1ToV2 drops v1 entries: their key parts are not recoverable
// from the id, and every entry can be refitted.
var migrationV1ToV2 = `
DROP TABLE IF EXISTS fits;
` + schemaV2 + `
UPDATE schema_version SET version = 2;
`

package docstore

// SchemaVersion is the current SQL schema version.
const SchemaVersion = 1

// dialect captures the SQL differences between backends. Queries are
// written with "?" placeholders and rebound for backends that number them.
type dialect struct {
	backend          string
	numbered         bool
	schema           []string
	insertVersion    string
	registerDatabase string
	upsertDocument   string
	lockForUpdate    string
}

var sqliteDialect = dialect{
	backend: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS docstore_schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS docstore_databases (
    name TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS docstore_documents (
    db TEXT NOT NULL,
    id TEXT NOT NULL,
    rev TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (db, id)
)`,
	},
	insertVersion:    `INSERT OR IGNORE INTO docstore_schema_version (version) VALUES (?)`,
	registerDatabase: `INSERT INTO docstore_databases (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
	upsertDocument: `INSERT INTO docstore_documents (db, id, rev, body) VALUES (?, ?, ?, ?)
ON CONFLICT (db, id) DO UPDATE SET rev = excluded.rev, body = excluded.body`,
}

var postgresDialect = dialect{
	backend:  "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS docstore_schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS docstore_databases (
    name TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS docstore_documents (
    db TEXT NOT NULL,
    id TEXT COLLATE "C" NOT NULL,
    rev TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (db, id)
)`,
	},
	insertVersion:    `INSERT INTO docstore_schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING`,
	registerDatabase: `INSERT INTO docstore_databases (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
	upsertDocument: `INSERT INTO docstore_documents (db, id, rev, body) VALUES (?, ?, ?, ?)
ON CONFLICT (db, id) DO UPDATE SET rev = excluded.rev, body = excluded.body`,
	lockForUpdate: " FOR UPDATE",
}

var mysqlDialect = dialect{
	backend: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS docstore_schema_version (
    version INT PRIMARY KEY,
    applied_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
)`,
		`CREATE TABLE IF NOT EXISTS docstore_databases (
    name VARCHAR(255) COLLATE utf8mb4_bin PRIMARY KEY,
    created_at DATETIME(6) NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS docstore_documents (
    db VARCHAR(255) COLLATE utf8mb4_bin NOT NULL,
    id VARCHAR(255) COLLATE utf8mb4_bin NOT NULL,
    rev VARCHAR(64) NOT NULL,
    body LONGTEXT NOT NULL,
    PRIMARY KEY (db, id)
)`,
	},
	insertVersion:    `INSERT IGNORE INTO docstore_schema_version (version) VALUES (?)`,
	registerDatabase: `INSERT IGNORE INTO docstore_databases (name, created_at) VALUES (?, ?)`,
	upsertDocument: `INSERT INTO docstore_documents (db, id, rev, body) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE rev = VALUES(rev), body = VALUES(body)`,
	lockForUpdate: " FOR UPDATE",
}

const (
	getSchemaVersion = `SELECT MAX(version) FROM docstore_schema_version`
	listDatabases    = `SELECT name FROM docstore_databases ORDER BY name`
	selectDocument   = `SELECT rev, body FROM docstore_documents WHERE db = ? AND id = ?`
	selectRev        = `SELECT rev FROM docstore_documents WHERE db = ? AND id = ?`
	deleteDocument   = `DELETE FROM docstore_documents WHERE db = ? AND id = ?`
	countDocuments   = `SELECT COUNT(*) FROM docstore_documents WHERE db = ?`
)

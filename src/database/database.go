package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/briefingdesk/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateAssetTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		password_reset_token TEXT,
		password_reset_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS portfolio_assets (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		company_id INTEGER,
		ticker TEXT,
		stock_name TEXT,
		isin TEXT,
		asset_class TEXT NOT NULL DEFAULT 'Other',
		category TEXT,
		currency TEXT,
		shares REAL,
		avg_cost REAL,
		ticker_eod TEXT,
		description TEXT,
		enrichment_reviewed INTEGER NOT NULL DEFAULT 0,
		enrichment_reviewed_at TIMESTAMP,
		enrichment_reviewed_by TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_portfolio_assets_portfolio ON portfolio_assets(portfolio_id);
	CREATE INDEX IF NOT EXISTS idx_portfolio_assets_company ON portfolio_assets(company_id);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateAssetTable adds columns introduced after the first portfolio_assets
// schema shipped. SQLite has no ADD COLUMN IF NOT EXISTS, so the existing
// columns are read from PRAGMA table_info first.
func migrateAssetTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='portfolio_assets'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			logInfo("'portfolio_assets' table does not exist, no migration needed as table will be created.")
			return
		}
		logError("Error checking for 'portfolio_assets' table", err)
		return
	}

	rows, err := DB.Query("PRAGMA table_info(portfolio_assets)")
	if err != nil {
		logError("Error querying table schema for 'portfolio_assets'", err)
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			logError("Error scanning column info for 'portfolio_assets'", err)
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		logError("Error iterating over column info for 'portfolio_assets'", err)
		return
	}

	addColumn := func(name, ddl string) {
		if columnExists[name] {
			return
		}
		if _, err := DB.Exec("ALTER TABLE portfolio_assets ADD COLUMN " + ddl); err != nil {
			logError("Error adding '"+name+"' column to 'portfolio_assets' table", err)
		} else {
			logInfo("Added '" + name + "' column to 'portfolio_assets' table")
		}
	}

	addColumn("ticker_eod", "ticker_eod TEXT")
	addColumn("description", "description TEXT")
	addColumn("version", "version INTEGER NOT NULL DEFAULT 1")
	addColumn("currency", "currency TEXT")
	addColumn("category", "category TEXT")
	addColumn("enrichment_reviewed", "enrichment_reviewed INTEGER NOT NULL DEFAULT 0")
	addColumn("enrichment_reviewed_at", "enrichment_reviewed_at TIMESTAMP")
	addColumn("enrichment_reviewed_by", "enrichment_reviewed_by TEXT")
}

func logInfo(msg string) {
	if logger.L != nil {
		logger.L.Info(msg)
	} else {
		stdlog.Println(msg)
	}
}

func logError(msg string, err error) {
	if logger.L != nil {
		logger.L.Error(msg, "error", err)
	} else {
		stdlog.Printf("%s: %v", msg, err)
	}
}

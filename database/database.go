package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the SQLite3 database at url and brings its schema up to date.
func Open(url string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite3", dsn(url))
	if err != nil {
		return
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return
	}

	return
}

// dsn makes sure every pooled connection enforces foreign keys and waits on
// locks. Transactions take the write lock when they begin, so a read followed
// by a write inside one never needs a lock upgrade.
func dsn(url string) string {
	if strings.Contains(url, "?") {
		return url + "&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	}
	return "file:" + url + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

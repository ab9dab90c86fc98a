package client

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// State manages client-side persistent state
type State struct {
	db  *sql.DB
	dir string // Directory where state is stored
}

// OpenState opens or creates the client state database
func OpenState(path string) (*State, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Client only needs one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &State{db: db, dir: dir}, nil
}

// migrations are applied in order; the index+1 is the schema version
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS Config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS Contacts (
		owner      TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		has_unread INTEGER NOT NULL DEFAULT 0,
		position   INTEGER NOT NULL,
		added_at   INTEGER NOT NULL,
		PRIMARY KEY (owner, contact_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ConnectionHistory (
		identity                 TEXT PRIMARY KEY,
		last_successful_endpoint TEXT NOT NULL,
		last_success_at          INTEGER NOT NULL
	)`,
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS SchemaVersion (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM SchemaVersion`).Scan(&version); err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO SchemaVersion (version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the state database
func (s *State) Close() error {
	return s.db.Close()
}

// GetConfig retrieves a configuration value
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value
func (s *State) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// GetLastIdentity returns the identity of the last session
func (s *State) GetLastIdentity() string {
	identity, _ := s.GetConfig("last_identity")
	return identity
}

// SetLastIdentity stores the identity of the current session
func (s *State) SetLastIdentity(identity string) error {
	return s.SetConfig("last_identity", identity)
}

// LoadContacts returns owner's contacts in display order
func (s *State) LoadContacts(owner string) ([]Contact, error) {
	rows, err := s.db.Query(`
		SELECT contact_id, has_unread
		FROM Contacts
		WHERE owner = ?
		ORDER BY position, added_at
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.HasUnread); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// SaveContact records a contact at position; an existing row keeps its position and flag
func (s *State) SaveContact(owner string, contact Contact, position int) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO Contacts (owner, contact_id, has_unread, position, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, owner, contact.ID, contact.HasUnread, position, time.Now().Unix())
	return err
}

// SetContactUnread updates the unread flag of a stored contact
func (s *State) SetContactUnread(owner, id string, unread bool) error {
	_, err := s.db.Exec(`
		UPDATE Contacts SET has_unread = ? WHERE owner = ? AND contact_id = ?
	`, unread, owner, id)
	return err
}

// GetLastSuccessfulEndpoint retrieves the endpoint of the last successful connection for identity
func (s *State) GetLastSuccessfulEndpoint(identity string) (string, error) {
	var endpoint string
	err := s.db.QueryRow(`
		SELECT last_successful_endpoint
		FROM ConnectionHistory
		WHERE identity = ?
	`, identity).Scan(&endpoint)

	if err == sql.ErrNoRows {
		return "", nil // No history for this identity
	}
	return endpoint, err
}

// SaveSuccessfulConnection records a successful connection for identity
func (s *State) SaveSuccessfulConnection(identity, endpoint string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ConnectionHistory (identity, last_successful_endpoint, last_success_at)
		VALUES (?, ?, ?)
	`, identity, endpoint, time.Now().Unix())
	return err
}

// GetStateDir returns the directory where state is stored
func (s *State) GetStateDir() string {
	return s.dir
}

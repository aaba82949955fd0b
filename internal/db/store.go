// internal/db/store.go
package db

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"avatar/internal/chat"
)

type Store struct {
	db *sql.DB
}

func Open() (*Store, error) {
	dataDir, err := dataDir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	return OpenAt(filepath.Join(dataDir, "avatar.db"))
}

// OpenAt opens a store at an explicit path.
func OpenAt(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func dataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "avatar"), nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		is_error INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL REFERENCES messages(id),
		provider TEXT NOT NULL,
		name TEXT,
		content TEXT NOT NULL,
		model TEXT,
		tokens TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_responses_message ON responses(message_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMessage persists a timeline message with its group responses, if any.
func (s *Store) SaveMessage(m chat.Message) error {
	isError := 0
	if m.IsError {
		isError = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO messages (id, role, content, provider, model, is_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Role), m.Content, m.Provider, m.Model, isError, m.Timestamp,
	)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(`DELETE FROM responses WHERE message_id = ?`, m.ID); err != nil {
		return err
	}
	for _, r := range m.Responses {
		var tokens []byte
		if r.Tokens != nil {
			tokens, _ = json.Marshal(r.Tokens)
		}
		_, err := s.db.Exec(
			`INSERT INTO responses (message_id, provider, name, content, model, tokens, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, r.Provider, r.Name, r.Content, r.Model, nullableText(tokens), r.Timestamp,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// History retrieves all persisted messages in timeline order.
func (s *Store) History() ([]chat.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, role, content, provider, model, is_error, created_at
		 FROM messages ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		var provider, model sql.NullString
		var isError int
		if err := rows.Scan(&m.ID, &role, &m.Content, &provider, &model, &isError, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = chat.Role(role)
		m.Provider = provider.String
		m.Model = model.String
		m.IsError = isError != 0
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		responses, err := s.responsesFor(messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages[i].Responses = responses
	}
	return messages, nil
}

func (s *Store) responsesFor(messageID string) ([]chat.ProviderResponse, error) {
	rows, err := s.db.Query(
		`SELECT provider, name, content, model, tokens, created_at
		 FROM responses WHERE message_id = ? ORDER BY id`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []chat.ProviderResponse
	for rows.Next() {
		var r chat.ProviderResponse
		var name, model, tokens sql.NullString
		if err := rows.Scan(&r.Provider, &name, &r.Content, &model, &tokens, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Name = name.String
		r.Model = model.String
		r.Complete = true
		if tokens.Valid {
			var tu chat.TokenUsage
			if json.Unmarshal([]byte(tokens.String), &tu) == nil {
				r.Tokens = &tu
			}
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// ClearHistory removes all persisted messages and responses.
func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec(`DELETE FROM responses`); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM messages`)
	return err
}

// GetSetting returns the stored value for key, or "" when absent.
func (s *Store) GetSetting(key string) (string, error) {
	row := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetSetting stores a key/value pair, replacing any previous value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Get implements the rates storage interface.
func (s *Store) Get(key string) (string, error) {
	return s.GetSetting(key)
}

// Set implements the rates storage interface.
func (s *Store) Set(key, value string) error {
	return s.SetSetting(key, value)
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

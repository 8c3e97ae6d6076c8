package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/vasilisp/edurag/pkg/embedding"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// Key identifies an embedding by model and input text.
func Key(model string, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func Lookup(ctx context.Context, db *sql.DB, key string) ([]float64, bool, error) {
	var blob []byte
	err := db.QueryRowContext(ctx, `SELECT embedding FROM embeddings WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup query error: %w", err)
	}

	vector, err := embedding.Decode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt embedding %s: %w", key, err)
	}

	return vector, true, nil
}

func Insert(ctx context.Context, db *sql.DB, key string, source string, vector []float64, stamp int64) error {
	if _, err := db.ExecContext(ctx, `
			INSERT INTO embeddings(key, source, embedding, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		    `, key, source, embedding.Encode(vector), stamp); err != nil {
		return fmt.Errorf("failed to update database: %w", err)
	}

	log.Debug().Msgf("cached embedding for %s", source)
	return nil
}

func Count(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query error: %w", err)
	}
	return n, nil
}

// Init opens the embedding cache at path, creating it if needed. ":memory:"
// opens a private in-memory cache.
func Init(path string) (*sql.DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings(
			key TEXT NOT NULL PRIMARY KEY,
			source TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info().Msgf("embedding cache at %s", path)
	return db, nil
}

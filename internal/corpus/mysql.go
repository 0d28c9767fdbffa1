package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/core"
)

// ErrInvalidTableName indicates a table name outside the allowed identifier
// character set.
var ErrInvalidTableName = errors.New("invalid corpus table name")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MySQL reads corpus metadata from a database table with columns
// (id, audio_ref, raw_text). Rows are ordered by id so repeated loads of an
// unchanged table yield the identical sequence.
type MySQL struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

// NewMySQL creates a provider over an open database handle.
func NewMySQL(db *sql.DB, table string, log *logger.Logger) (*MySQL, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}

	return &MySQL{
		db:    db,
		table: table,
		log:   log,
	}, nil
}

// Load queries all metadata rows into candidate records.
func (p *MySQL) Load(ctx context.Context) ([]core.Candidate, error) {
	// Table name is validated against an identifier whitelist in NewMySQL.
	query := fmt.Sprintf("SELECT audio_ref, raw_text FROM %s ORDER BY id", p.table)

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query corpus table '%s': %w", p.table, err)
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close corpus rows: %v", closeErr)
		}
	}()

	var candidates []core.Candidate

	for rows.Next() {
		var audioRef, rawText string

		scanErr := rows.Scan(&audioRef, &rawText)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRow, scanErr)
		}

		candidates = append(candidates, core.Candidate{
			AudioRef: audioRef,
			RawText:  rawText,
			TokenIDs: nil,
		})
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate corpus rows: %w", rowsErr)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: table %s", ErrEmptyCorpus, p.table)
	}

	p.log.Info("Loaded %d corpus records from table %s", len(candidates), p.table)

	return candidates, nil
}

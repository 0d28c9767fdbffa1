package corpus

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/core"
)

const (
	cacheMetaDelimiter = "|"
	cacheMetaColumns   = 3
)

// CacheMeta reads the secondary metadata file of a precomputed feature
// cache: one record per line, columns {artifact_key, raw_text, token_ids},
// token ids space-separated. Records carry their token sequence, so the
// text cleaner is not consulted for them.
type CacheMeta struct {
	cacheDir     string
	metadataFile string
	log          *logger.Logger
}

// NewCacheMeta creates a provider over a feature cache directory.
func NewCacheMeta(cacheDir, metadataFile string, log *logger.Logger) *CacheMeta {
	return &CacheMeta{
		cacheDir:     cacheDir,
		metadataFile: metadataFile,
		log:          log,
	}
}

// Load parses the cache metadata file into candidate records in file order.
// The AudioRef of each candidate is the cache artifact key.
func (p *CacheMeta) Load(ctx context.Context) ([]core.Candidate, error) {
	path := filepath.Join(p.cacheDir, p.metadataFile)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache metadata file '%s': %w", path, err)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close cache metadata file '%s': %v", path, closeErr)
		}
	}()

	var candidates []core.Candidate

	scanner := bufio.NewScanner(file)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("cache metadata load canceled: %w", ctxErr)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		candidate, err := parseCacheRow(line, lineNo)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, candidate)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read cache metadata file: %w", scanErr)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, path)
	}

	p.log.Info("Loaded %d cached corpus records from %s", len(candidates), path)

	return candidates, nil
}

func parseCacheRow(line string, lineNo int) (core.Candidate, error) {
	columns := strings.Split(line, cacheMetaDelimiter)
	if len(columns) != cacheMetaColumns {
		return core.Candidate{}, fmt.Errorf(
			"%w: line %d has %d columns", ErrMalformedRow, lineNo, len(columns))
	}

	fields := strings.Fields(columns[2])

	tokenIDs := make([]int, 0, len(fields))

	for _, field := range fields {
		id, convErr := strconv.Atoi(field)
		if convErr != nil || id < 0 {
			return core.Candidate{}, fmt.Errorf(
				"%w: line %d has invalid token id %q", ErrMalformedRow, lineNo, field)
		}

		tokenIDs = append(tokenIDs, id)
	}

	return core.Candidate{
		AudioRef: columns[0],
		RawText:  columns[1],
		TokenIDs: tokenIDs,
	}, nil
}

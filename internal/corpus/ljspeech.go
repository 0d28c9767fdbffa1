package corpus

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/core"
)

const (
	ljspeechDelimiter = "|"
	ljspeechWavsDir   = "wavs"
	ljspeechWavExt    = ".wav"

	ljspeechMinColumns = 2
	ljspeechMaxColumns = 3
)

// LJSpeech reads the pipe-delimited LJSpeech metadata layout:
// one record per line, columns {id, raw_text[, normalized_text]}.
// The normalized column is preferred when present.
type LJSpeech struct {
	root         string
	metadataFile string
	log          *logger.Logger
}

// NewLJSpeech creates a provider rooted at the corpus directory.
func NewLJSpeech(root, metadataFile string, log *logger.Logger) *LJSpeech {
	return &LJSpeech{
		root:         root,
		metadataFile: metadataFile,
		log:          log,
	}
}

// Load parses the metadata file into candidate records in file order.
func (p *LJSpeech) Load(ctx context.Context) ([]core.Candidate, error) {
	path := filepath.Join(p.root, p.metadataFile)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file '%s': %w", path, err)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close metadata file '%s': %v", path, closeErr)
		}
	}()

	candidates, err := p.parse(ctx, file)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, path)
	}

	p.log.Info("Loaded %d corpus records from %s", len(candidates), path)

	return candidates, nil
}

func (p *LJSpeech) parse(ctx context.Context, file *os.File) ([]core.Candidate, error) {
	var candidates []core.Candidate

	scanner := bufio.NewScanner(file)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("corpus load canceled: %w", ctxErr)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		candidate, err := p.parseRow(line, lineNo)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, candidate)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", scanErr)
	}

	return candidates, nil
}

func (p *LJSpeech) parseRow(line string, lineNo int) (core.Candidate, error) {
	columns := strings.Split(line, ljspeechDelimiter)
	if len(columns) < ljspeechMinColumns || len(columns) > ljspeechMaxColumns {
		return core.Candidate{}, fmt.Errorf(
			"%w: line %d has %d columns", ErrMalformedRow, lineNo, len(columns))
	}

	rawText := columns[1]
	if len(columns) == ljspeechMaxColumns && strings.TrimSpace(columns[2]) != "" {
		rawText = columns[2]
	}

	audioRef := filepath.Join(p.root, ljspeechWavsDir, columns[0]+ljspeechWavExt)

	_, statErr := os.Stat(audioRef)
	if statErr != nil {
		return core.Candidate{}, fmt.Errorf(
			"%w: line %d references '%s'", ErrMissingAudio, lineNo, audioRef)
	}

	return core.Candidate{
		AudioRef: audioRef,
		RawText:  rawText,
		TokenIDs: nil,
	}, nil
}

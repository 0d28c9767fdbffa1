// Package featstore persists precomputed frame matrices as cache artifacts.
//
// Artifacts live behind the core.ObjectStore interface; a filesystem store
// covers the common single-host case and a NATS JetStream object store
// serves multi-host training setups. Both hold the same binary encoding.
package featstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

const headerSize = 8

var (
	// ErrRaggedMatrix indicates rows of differing width.
	ErrRaggedMatrix = errors.New("frame matrix rows differ in width")
	// ErrCorruptArtifact indicates an artifact whose payload does not match
	// its header.
	ErrCorruptArtifact = errors.New("corrupt feature artifact")
)

// keyNamespace seeds deterministic artifact keys. Changing it invalidates
// every existing cache.
var keyNamespace = uuid.MustParse("8f2c6b1e-77d4-4e6a-9c0d-5a3b1c9d0e7f")

// Key derives the stable cache key for an audio reference.
func Key(audioRef string) string {
	return uuid.NewSHA1(keyNamespace, []byte(audioRef)).String() + ".mel"
}

// EncodeFrames serializes a frame matrix: a little-endian (rows, cols)
// header followed by row-major float32 values.
func EncodeFrames(frames [][]float32) ([]byte, error) {
	rows := len(frames)

	cols := 0
	if rows > 0 {
		cols = len(frames[0])
	}

	data := make([]byte, headerSize, headerSize+rows*cols*4)
	binary.LittleEndian.PutUint32(data[0:4], uint32(rows))
	binary.LittleEndian.PutUint32(data[4:8], uint32(cols))

	for _, row := range frames {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: expected %d columns, got %d",
				ErrRaggedMatrix, cols, len(row))
		}

		for _, value := range row {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(value))
		}
	}

	return data, nil
}

// DecodeFrames deserializes an artifact back into a frame matrix.
func DecodeFrames(data []byte) ([][]float32, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a header",
			ErrCorruptArtifact, len(data))
	}

	rows := int(binary.LittleEndian.Uint32(data[0:4]))
	cols := int(binary.LittleEndian.Uint32(data[4:8]))

	payload := data[headerSize:]
	if len(payload) != rows*cols*4 {
		return nil, fmt.Errorf("%w: header claims %dx%d but payload holds %d bytes",
			ErrCorruptArtifact, rows, cols, len(payload))
	}

	frames := make([][]float32, rows)

	offset := 0
	for r := range frames {
		row := make([]float32, cols)
		for c := range row {
			row[c] = math.Float32frombits(
				binary.LittleEndian.Uint32(payload[offset : offset+4]))
			offset += 4
		}

		frames[r] = row
	}

	return frames, nil
}

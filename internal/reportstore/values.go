package reportstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/davidfague/bmtool/internal/connectivity"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// encodeValues packs m row-major as little-endian float64 bits and
// compresses them. NaN cells keep their bit pattern.
func encodeValues(m *connectivity.Matrix) []byte {
	raw := make([]byte, 0, 8*m.Rows()*m.Cols())
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(m.At(i, j)))
		}
	}
	return encoder.EncodeAll(raw, nil)
}

func decodeValues(blob []byte, rows, cols int) (*connectivity.Matrix, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}
	if len(raw) != 8*rows*cols {
		return nil, fmt.Errorf("values blob holds %d bytes for %dx%d matrix", len(raw), rows, cols)
	}
	m := connectivity.NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			off := 8 * (i*cols + j)
			m.Set(i, j, math.Float64frombits(binary.LittleEndian.Uint64(raw[off:])))
		}
	}
	return m, nil
}

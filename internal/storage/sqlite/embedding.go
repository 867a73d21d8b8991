package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embeddings are stored as little-endian float64 BLOBs: 8 bytes per
// dimension, no header. A NULL/empty column means the record was stored
// in degraded mode without an embedding.

// serializeEmbedding converts a float64 vector to its binary BLOB form.
func serializeEmbedding(embedding []float64) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding converts a binary BLOB back to a float64 vector.
// A nil or empty buffer yields a nil vector (degraded-mode record).
func deserializeEmbedding(buf []byte) ([]float64, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("embedding blob size %d is not a multiple of 8", len(buf))
	}
	embedding := make([]float64, len(buf)/8)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return embedding, nil
}

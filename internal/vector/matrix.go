package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// The vectors artifact is a little-endian binary matrix:
// dimensions (uint32), count (uint32), then count*dimensions float32 values
// in insertion order. Position i corresponds to the chunk at position i in
// the co-located chunks artifact.

// WriteMatrix writes vectors to w in the binary matrix format.
func WriteMatrix(w io.Writer, dimensions int, vectors [][]float32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, vec := range vectors {
		if len(vec) != dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), dimensions)
		}
		if _, err := w.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// ReadMatrix reads a binary matrix from r. wantDimensions of 0 accepts any
// dimensionality; otherwise a mismatch is an error.
func ReadMatrix(r io.Reader, wantDimensions int) ([][]float32, error) {
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if wantDimensions > 0 && int(dim) != wantDimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, expected %d", dim, wantDimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return vectors, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

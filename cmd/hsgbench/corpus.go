package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// vectors is a row-major dense corpus: count vectors of dimension floats
// each, as loaded from a train/test file.
type vectors struct {
	dimension int
	rows      [][]float32
}

// neighbors is a row-major ground-truth neighbor-id matrix: count rows of
// neighborCount ids each, as loaded from a truth file.
type neighbors struct {
	neighborCount int
	rows          [][]uint64
}

// readVectors loads a corpus file matching the spec's wire format:
//
//	u64 count
//	u64 dimension
//	f32 data[count][dimension]   // row-major, little-endian
func readVectors(path string) (*vectors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	count, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("hsgbench: reading count from %s: %w", path, err)
	}
	dimension, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("hsgbench: reading dimension from %s: %w", path, err)
	}

	v := &vectors{dimension: int(dimension), rows: make([][]float32, count)}
	for i := range v.rows {
		row := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("hsgbench: reading row %d from %s: %w", i, path, err)
		}
		v.rows[i] = row
	}
	return v, nil
}

// readNeighbors loads a ground-truth file matching the spec's wire format:
//
//	u64 count
//	u64 neighbor_count
//	u64 neighbors[count][neighbor_count]   // row-major, little-endian
func readNeighbors(path string) (*neighbors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	count, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("hsgbench: reading count from %s: %w", path, err)
	}
	neighborCount, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("hsgbench: reading neighbor_count from %s: %w", path, err)
	}

	n := &neighbors{neighborCount: int(neighborCount), rows: make([][]uint64, count)}
	for i := range n.rows {
		row := make([]uint64, neighborCount)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("hsgbench: reading row %d from %s: %w", i, path, err)
		}
		n.rows[i] = row
	}
	return n, nil
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

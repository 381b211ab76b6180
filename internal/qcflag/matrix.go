package qcflag

import "fmt"

// Matrix is a ping × bin grid of flag codes, stored row-major.
type Matrix struct {
	rows, cols int
	data       []Code
}

// NewMatrix allocates a rows × cols matrix with every cell set to fill.
func NewMatrix(rows, cols int, fill Code) *Matrix {
	m := &Matrix{rows: rows, cols: cols, data: make([]Code, rows*cols)}
	if fill != 0 {
		for i := range m.data {
			m.data[i] = fill
		}
	}
	return m
}

// Dims returns the number of pings and bins.
func (m *Matrix) Dims() (rows, cols int) { return m.rows, m.cols }

func (m *Matrix) At(i, j int) Code { return m.data[i*m.cols+j] }

func (m *Matrix) Set(i, j int, c Code) { m.data[i*m.cols+j] = c }

// SetRow sets every bin of ping i to c.
func (m *Matrix) SetRow(i int, c Code) {
	row := m.data[i*m.cols : (i+1)*m.cols]
	for j := range row {
		row[j] = c
	}
}

// Count returns the number of cells holding c.
func (m *Matrix) Count(c Code) int {
	n := 0
	for _, v := range m.data {
		if v == c {
			n++
		}
	}
	return n
}

// Counts tallies every code present in the matrix.
func (m *Matrix) Counts() map[Code]int {
	out := make(map[Code]int)
	for _, v := range m.data {
		out[v]++
	}
	return out
}

// Len is the total number of cells.
func (m *Matrix) Len() int { return len(m.data) }

// Clone returns an independent copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{rows: m.rows, cols: m.cols, data: make([]Code, len(m.data))}
	copy(c.data, m.data)
	return c
}

// Merge folds other into m cell by cell, keeping the more severe flag
// according to set.
func (m *Matrix) Merge(set *Set, other *Matrix) error {
	if other.rows != m.rows || other.cols != m.cols {
		return fmt.Errorf("flag matrix shape %dx%d does not match %dx%d", other.rows, other.cols, m.rows, m.cols)
	}
	for i, v := range other.data {
		m.data[i] = set.Worse(m.data[i], v)
	}
	return nil
}

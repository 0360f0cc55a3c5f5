package prediction

// Matrix is a dense square matrix of predicted aligned errors. Cell (i, j)
// is the expected position error of residue j when the prediction is aligned
// on residue i.
type Matrix struct {
	n    int
	data []float64
}

// NewMatrix returns an n x n zero matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{n: n, data: make([]float64, n*n)}
}

// MatrixFromRows copies a row-major slice of rows. The caller is responsible
// for checking that the rows are square.
func MatrixFromRows(rows [][]float64) *Matrix {
	m := NewMatrix(len(rows))
	for i, row := range rows {
		copy(m.data[i*m.n:(i+1)*m.n], row)
	}
	return m
}

func (m *Matrix) Size() int { return m.n }

func (m *Matrix) At(i, j int) float64 { return m.data[i*m.n+j] }

func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.n+j] = v }

// Sub returns the matrix restricted to the given indices, in their order.
func (m *Matrix) Sub(indices []int) *Matrix {
	sub := NewMatrix(len(indices))
	for a, i := range indices {
		for b, j := range indices {
			sub.Set(a, b, m.At(i, j))
		}
	}
	return sub
}

// Max returns the largest cell, or 0 for an empty matrix.
func (m *Matrix) Max() float64 {
	max := 0.0
	for _, v := range m.data {
		if v > max {
			max = v
		}
	}
	return max
}

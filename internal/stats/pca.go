package stats

import (
	"math"

	"github.com/rotisserie/eris"
)

// Correlation returns the Pearson correlation of two equal-length samples,
// 0 when either side has degenerate variance.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}
	ma, mb := Mean(a), Mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if Degenerate(va) || Degenerate(vb) {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// CorrelationMatrix builds the k x k correlation matrix of k column series.
// All columns must have the same length.
func CorrelationMatrix(cols [][]float64) ([][]float64, error) {
	k := len(cols)
	if k == 0 {
		return nil, eris.New("stats: correlation matrix of zero columns")
	}
	n := len(cols[0])
	for _, c := range cols {
		if len(c) != n {
			return nil, eris.New("stats: ragged columns in correlation matrix")
		}
	}
	m := make([][]float64, k)
	for i := range m {
		m[i] = make([]float64, k)
		m[i][i] = 1
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			c := Correlation(cols[i], cols[j])
			m[i][j] = c
			m[j][i] = c
		}
	}
	return m, nil
}

// LeadingEigenvector approximates the eigenvector of the largest eigenvalue
// of a symmetric matrix by power iteration.
func LeadingEigenvector(m [][]float64, iterations int) ([]float64, error) {
	k := len(m)
	if k == 0 {
		return nil, eris.New("stats: empty matrix")
	}
	for _, row := range m {
		if len(row) != k {
			return nil, eris.New("stats: non-square matrix")
		}
	}
	if iterations <= 0 {
		iterations = 100
	}

	v := make([]float64, k)
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(k))
	}

	next := make([]float64, k)
	for iter := 0; iter < iterations; iter++ {
		var norm float64
		for i := 0; i < k; i++ {
			var s float64
			for j := 0; j < k; j++ {
				s += m[i][j] * v[j]
			}
			next[i] = s
			norm += s * s
		}
		norm = math.Sqrt(norm)
		if Degenerate(norm) {
			return nil, eris.New("stats: power iteration collapsed")
		}
		var delta float64
		for i := range v {
			nv := next[i] / norm
			delta += math.Abs(nv - v[i])
			v[i] = nv
		}
		if delta < 1e-10 {
			break
		}
	}
	return v, nil
}

// FirstComponentWeights fits the leading principal component of the
// correlation matrix of the given columns and returns the absolute loadings
// renormalized to sum to 1.
func FirstComponentWeights(cols [][]float64) ([]float64, error) {
	corr, err := CorrelationMatrix(cols)
	if err != nil {
		return nil, err
	}
	vec, err := LeadingEigenvector(corr, 200)
	if err != nil {
		return nil, err
	}
	var sum float64
	weights := make([]float64, len(vec))
	for i, v := range vec {
		weights[i] = math.Abs(v)
		sum += weights[i]
	}
	if Degenerate(sum) {
		return nil, eris.New("stats: degenerate component loadings")
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

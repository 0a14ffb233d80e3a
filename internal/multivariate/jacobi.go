package multivariate

import (
	"math"
	"sort"
)

// eigenPair is one eigenvalue with its unit eigenvector
type eigenPair struct {
	value  float64
	vector []float64
}

// jacobiEigen diagonalizes the symmetric matrix a with cyclic Jacobi
// rotations. a is not modified. Pairs come back sorted by descending
// eigenvalue, each vector signed so its largest-magnitude entry is positive.
func jacobiEigen(a [][]float64, tolerance float64, maxSweeps int) ([]eigenPair, int) {
	n := len(a)
	m := make([][]float64, n)
	v := make([][]float64, n)
	for i := range a {
		m[i] = append([]float64(nil), a[i]...)
		v[i] = make([]float64, n)
		v[i][i] = 1
	}

	sweeps := 0
	for ; sweeps < maxSweeps; sweeps++ {
		if offDiagonal(m) < tolerance {
			break
		}
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(m[p][q]) < 1e-300 {
					continue
				}
				rotate(m, v, p, q)
			}
		}
	}

	pairs := make([]eigenPair, n)
	for j := 0; j < n; j++ {
		vec := make([]float64, n)
		for i := 0; i < n; i++ {
			vec[i] = v[i][j]
		}
		normalizeSign(vec)
		pairs[j] = eigenPair{value: m[j][j], vector: vec}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].value > pairs[j].value })
	return pairs, sweeps
}

// rotate zeroes m[p][q] with one Jacobi rotation and accumulates it into v
func rotate(m, v [][]float64, p, q int) {
	theta := (m[q][q] - m[p][p]) / (2 * m[p][q])
	t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
	if theta < 0 {
		t = -t
	}
	c := 1 / math.Sqrt(t*t+1)
	s := t * c

	n := len(m)
	for k := 0; k < n; k++ {
		mkp, mkq := m[k][p], m[k][q]
		m[k][p] = c*mkp - s*mkq
		m[k][q] = s*mkp + c*mkq
	}
	for k := 0; k < n; k++ {
		mpk, mqk := m[p][k], m[q][k]
		m[p][k] = c*mpk - s*mqk
		m[q][k] = s*mpk + c*mqk
	}
	for k := 0; k < n; k++ {
		vkp, vkq := v[k][p], v[k][q]
		v[k][p] = c*vkp - s*vkq
		v[k][q] = s*vkp + c*vkq
	}
}

func offDiagonal(m [][]float64) float64 {
	sum := 0.0
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			sum += m[i][j] * m[i][j]
		}
	}
	return sum
}

func normalizeSign(vec []float64) {
	best := 0
	for i := range vec {
		if math.Abs(vec[i]) > math.Abs(vec[best]) {
			best = i
		}
	}
	if vec[best] < 0 {
		for i := range vec {
			vec[i] = -vec[i]
		}
	}
}

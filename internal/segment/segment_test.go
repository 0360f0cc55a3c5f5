package segment

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dense [][]float64

func (d dense) Size() int           { return len(d) }
func (d dense) At(i, j int) float64 { return d[i][j] }

// blocks returns an n x n matrix with low PAE inside each block and high
// PAE between blocks.
func blocks(sizes ...int) dense {
	var owner []int
	for b, size := range sizes {
		for k := 0; k < size; k++ {
			owner = append(owner, b)
		}
	}
	m := make(dense, len(owner))
	for i := range m {
		m[i] = make([]float64, len(owner))
		for j := range m[i] {
			switch {
			case i == j:
				m[i][j] = 0.2
			case owner[i] == owner[j]:
				m[i][j] = 1
			default:
				m[i][j] = 20
			}
		}
	}
	return m
}

func randomMatrix(n int, seed int64) dense {
	rng := rand.New(rand.NewSource(seed))
	m := make(dense, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = rng.Float64() * 12
		}
	}
	return m
}

func requirePartition(t *testing.T, n int, domains []Domain) {
	t.Helper()
	seen := make([]int, n)
	for _, d := range domains {
		require.NotEmpty(t, d)
		for k, i := range d {
			if k > 0 {
				require.Less(t, d[k-1], i, "domain members must be ascending")
			}
			seen[i]++
		}
	}
	for i, c := range seen {
		require.Equalf(t, 1, c, "residue %d assigned %d times", i, c)
	}
	for k := 1; k < len(domains); k++ {
		require.Less(t, domains[k-1][0], domains[k][0], "domains must be ordered by first member")
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{in: "soft", want: Soft},
		{in: " STRICT ", want: Strict},
		{in: "kmeans", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegmentSeparatesBlocks(t *testing.T) {
	m := blocks(5, 5)
	for _, method := range Methods {
		t.Run(string(method), func(t *testing.T) {
			domains, err := Segment(m, method, DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, []Domain{{0, 1, 2, 3, 4}, {5, 6, 7, 8, 9}}, domains)
		})
	}
}

func TestZeroCutoffYieldsSingletons(t *testing.T) {
	m := randomMatrix(25, 1)
	p := DefaultParams()
	p.Cutoff = 0
	for _, method := range Methods {
		t.Run(string(method), func(t *testing.T) {
			domains, err := Segment(m, method, p)
			require.NoError(t, err)
			require.Len(t, domains, 25)
			for i, d := range domains {
				assert.Equal(t, Domain{i}, d)
			}
		})
	}
}

func TestSoftToleratesMinorityOfHighPairs(t *testing.T) {
	m := blocks(6)
	m[0][5], m[5][0] = 8, 8

	soft := SoftDomains(m, DefaultParams())
	assert.Equal(t, []Domain{{0, 1, 2, 3, 4, 5}}, soft)

	strict := StrictDomains(m, DefaultParams().Cutoff)
	assert.Equal(t, []Domain{{0, 1, 2, 3, 4}, {5}}, strict)
}

func TestStrictAllPairsBelowCutoff(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		m := randomMatrix(40, seed)
		cutoff := 6.0
		domains := StrictDomains(m, cutoff)
		requirePartition(t, 40, domains)
		for _, d := range domains {
			for _, i := range d {
				for _, j := range d {
					if i != j {
						assert.Less(t, SymmetricMax(m, i, j), cutoff)
					}
				}
			}
		}
	}
}

func TestSoftIsPartitionAndDeterministic(t *testing.T) {
	m := randomMatrix(60, 7)
	p := DefaultParams()
	p.Cutoff = 6

	first := SoftDomains(m, p)
	requirePartition(t, 60, first)
	assert.Equal(t, first, SoftDomains(m, p))
}

func TestSoftImprovesModularity(t *testing.T) {
	m := blocks(4, 7, 3)
	p := DefaultParams()
	domains := SoftDomains(m, p)

	var singletons []Domain
	for i := 0; i < m.Size(); i++ {
		singletons = append(singletons, Domain{i})
	}
	assert.Greater(t, Modularity(m, domains, p), Modularity(m, singletons, p))
}

func TestSymmetricViews(t *testing.T) {
	m := dense{{0, 2}, {6, 0}}
	assert.Equal(t, 4.0, SymmetricMean(m, 0, 1))
	assert.Equal(t, 6.0, SymmetricMax(m, 1, 0))
}

func TestSegmentUnknownMethod(t *testing.T) {
	_, err := Segment(blocks(2), Method("other"), DefaultParams())
	assert.Error(t, err)
}

// Package segment partitions the residues of a prediction into candidate
// domains using its predicted aligned error matrix.
package segment

import (
	"fmt"
	"sort"
	"strings"
)

// Matrix is the read-only view of a PAE matrix the segmenters need.
type Matrix interface {
	Size() int
	At(i, j int) float64
}

// Method selects the clustering rule.
type Method string

const (
	// Soft groups residues by community detection on a PAE-weighted graph.
	// A domain may contain some pairs at or above the cutoff.
	Soft Method = "soft"
	// Strict only groups residues whose pairwise PAE is below the cutoff
	// for every pair in the domain.
	Strict Method = "strict"
)

// Methods lists the supported methods in the order they are reported.
var Methods = []Method{Soft, Strict}

// ParseMethod accepts a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case Soft:
		return Soft, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("unknown segmentation method %q (want soft or strict)", s)
}

// Params configures segmentation.
type Params struct {
	// Cutoff is the PAE threshold in Ångström. Pairs at or above it are
	// never linked directly.
	Cutoff float64
	// Power is the exponent applied to PAE when weighting soft edges.
	Power float64
	// Resolution is the Louvain resolution. Higher values give smaller
	// domains.
	Resolution float64
}

// DefaultParams matches the pipeline defaults.
func DefaultParams() Params {
	return Params{Cutoff: 5, Power: 1, Resolution: 0.5}
}

// Domain is an ascending list of residue indices.
type Domain []int

// Segment runs the chosen method. Every index of m appears in exactly one
// returned domain; domains are ordered by their first index.
func Segment(m Matrix, method Method, p Params) ([]Domain, error) {
	switch method {
	case Soft:
		return SoftDomains(m, p), nil
	case Strict:
		return StrictDomains(m, p.Cutoff), nil
	}
	return nil, fmt.Errorf("unknown segmentation method %q", method)
}

// SymmetricMean is the soft view of a PAE cell.
func SymmetricMean(m Matrix, i, j int) float64 {
	return (m.At(i, j) + m.At(j, i)) / 2
}

// SymmetricMax is the strict view of a PAE cell.
func SymmetricMax(m Matrix, i, j int) float64 {
	a, b := m.At(i, j), m.At(j, i)
	if a > b {
		return a
	}
	return b
}

// StrictDomains is greedy complete linkage in sequence order: each
// unassigned residue seeds a domain, and later residues join when they are
// below cutoff to every member.
func StrictDomains(m Matrix, cutoff float64) []Domain {
	n := m.Size()
	assigned := make([]bool, n)
	var domains []Domain
	for seed := 0; seed < n; seed++ {
		if assigned[seed] {
			continue
		}
		assigned[seed] = true
		domain := Domain{seed}
		for j := seed + 1; j < n; j++ {
			if assigned[j] || !joinsAll(m, domain, j, cutoff) {
				continue
			}
			assigned[j] = true
			domain = append(domain, j)
		}
		domains = append(domains, domain)
	}
	return domains
}

func joinsAll(m Matrix, domain Domain, j int, cutoff float64) bool {
	for _, i := range domain {
		if SymmetricMax(m, i, j) >= cutoff {
			return false
		}
	}
	return true
}

// SoftDomains builds the PAE graph and returns its Louvain communities.
func SoftDomains(m Matrix, p Params) []Domain {
	if p.Power == 0 {
		p.Power = 1
	}
	g := pae2graph(m, p.Cutoff, p.Power)
	labels := louvain(g, p.Resolution)
	return fromLabels(labels)
}

// fromLabels groups node indices by label and orders the groups by their
// lowest member.
func fromLabels(labels []int) []Domain {
	groups := map[int]Domain{}
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	domains := make([]Domain, 0, len(groups))
	for _, d := range groups {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(a, b int) bool { return domains[a][0] < domains[b][0] })
	return domains
}

package memmap

import (
	"fmt"
	"sort"
	"strings"
)

// nsAssignment records one reserved name path and a description of its
// owner, used verbatim in conflict diagnostics.
type nsAssignment struct {
	path  []string
	owner string
}

// namespace tracks the name paths assigned within one address space.
// A path conflicts with another when they are equal or when either is a
// segment-wise prefix of the other, so that donating a window's inner
// names can never silently shadow an existing leaf.
type namespace struct {
	assignments []nsAssignment // sorted by joined path
}

func pathKey(path []string) string {
	return strings.Join(path, "/")
}

// pathsConflict reports whether a and b are equal or one is a prefix of
// the other.
func pathsConflict(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return n > 0
}

// isAvailable reports whether every queried path can be assigned. Queried
// paths are also checked against each other, so a bulk donation with an
// internal conflict is rejected as a whole. When reasons is non-nil, one
// diagnostic per conflict is appended to it.
func (ns *namespace) isAvailable(queries [][]string, reasons *[]string) bool {
	conflicts := false
	for qi, query := range queries {
		reserved := make([]nsAssignment, 0, len(ns.assignments)+len(queries)-qi-1)
		reserved = append(reserved, ns.assignments...)
		for _, later := range queries[qi+1:] {
			reserved = append(reserved, nsAssignment{path: later, owner: "another donated name"})
		}
		sort.Slice(reserved, func(i, j int) bool {
			return pathKey(reserved[i].path) < pathKey(reserved[j].path)
		})

		for _, res := range reserved {
			if !pathsConflict(query, res.path) {
				continue
			}
			conflicts = true
			if reasons != nil {
				*reasons = append(*reasons, fmt.Sprintf("%s conflicts with local name %s assigned to %s",
					pathKey(query), pathKey(res.path), res.owner))
			}
		}
	}
	return !conflicts
}

// assign reserves a path. The caller must have checked availability.
func (ns *namespace) assign(path []string, owner string) {
	idx := sort.Search(len(ns.assignments), func(i int) bool {
		return pathKey(ns.assignments[i].path) >= pathKey(path)
	})
	ns.assignments = append(ns.assignments, nsAssignment{})
	copy(ns.assignments[idx+1:], ns.assignments[idx:])
	ns.assignments[idx] = nsAssignment{path: path, owner: owner}
}

// merge absorbs every assignment of other. The caller must have checked
// availability of other's names.
func (ns *namespace) merge(other *namespace) {
	for _, a := range other.assignments {
		ns.assign(a.path, a.owner)
	}
}

// names returns all reserved paths in sorted order.
func (ns *namespace) names() [][]string {
	out := make([][]string, len(ns.assignments))
	for i, a := range ns.assignments {
		out[i] = a.path
	}
	return out
}

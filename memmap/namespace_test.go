package memmap

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNamespaceAssignAndQuery(t *testing.T) {
	var ns namespace
	ns.assign([]string{"ctrl"}, `resource "ctrl"`)
	ns.assign([]string{"timer"}, `window "timer"`)

	tests := []struct {
		name      string
		query     []string
		available bool
	}{
		{"fresh name", []string{"uart"}, true},
		{"exact conflict", []string{"ctrl"}, false},
		{"inner path of reserved name", []string{"timer", "count"}, false},
		{"fresh nested path", []string{"uart", "rx"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ns.isAvailable([][]string{tc.query}, nil)
			if got != tc.available {
				t.Errorf("isAvailable(%v): expected %v, got %v", tc.query, tc.available, got)
			}
		})
	}
}

func TestNamespacePrefixConflict(t *testing.T) {
	var ns namespace
	ns.assign([]string{"timer", "count"}, `resource "count"`)

	// Reserving "timer" would shadow the donated inner name.
	var reasons []string
	if ns.isAvailable([][]string{{"timer"}}, &reasons) {
		t.Fatal("prefix of a reserved path reported available")
	}
	if len(reasons) != 1 {
		t.Fatalf("Expected 1 reason, got %d: %v", len(reasons), reasons)
	}
	if !strings.Contains(reasons[0], `conflicts with local name timer/count`) {
		t.Errorf("unexpected reason: %q", reasons[0])
	}
}

func TestNamespaceQueriesConflictAmongThemselves(t *testing.T) {
	var ns namespace
	queries := [][]string{{"a"}, {"b"}, {"a"}}
	var reasons []string
	if ns.isAvailable(queries, &reasons) {
		t.Fatal("donation with an internal duplicate reported available")
	}
	if len(reasons) == 0 {
		t.Error("Expected at least one reason for internal duplicate")
	}
}

func TestNamespaceMergeAndNames(t *testing.T) {
	var inner namespace
	inner.assign([]string{"rx"}, `resource "rx"`)
	inner.assign([]string{"tx"}, `resource "tx"`)

	var ns namespace
	ns.assign([]string{"ctrl"}, `resource "ctrl"`)
	if !ns.isAvailable(inner.names(), nil) {
		t.Fatal("disjoint donation reported unavailable")
	}
	ns.merge(&inner)

	want := [][]string{{"ctrl"}, {"rx"}, {"tx"}}
	if diff := cmp.Diff(want, ns.names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

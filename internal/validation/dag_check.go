package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/wireflow/pkg/schema"
)

// validateDAG looks for unlock cycles across items: item A waiting for an
// output of B while B (transitively) waits for A. Only dependsOn takes part;
// disappearOn hides an item that is already visible and cannot deadlock.
// Uses Kahn's algorithm; whatever is left unprocessed is stuck.
func validateDAG(items []*schema.Item) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	ids := make(map[int64]bool, len(items))
	for _, it := range items {
		if it != nil {
			ids[it.ID] = true
		}
	}

	// edges[id] = producers item id waits for, reverse[id] = its consumers.
	edges := make(map[int64][]int64, len(ids))
	reverse := make(map[int64][]int64, len(ids))

	for _, it := range items {
		if it == nil {
			continue
		}
		seen := make(map[int64]bool)
		for _, producer := range referencedItems(it.DependsOn) {
			if !ids[producer] || seen[producer] {
				continue // dangling refs are reported by the semantic stage
			}
			seen[producer] = true
			edges[it.ID] = append(edges[it.ID], producer)
			reverse[producer] = append(reverse[producer], it.ID)
		}
	}

	inDegree := make(map[int64]int, len(ids))
	queue := make([]int64, 0, len(ids))
	for id := range ids {
		inDegree[id] = len(edges[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, consumer := range reverse[node] {
			inDegree[consumer]--
			if inDegree[consumer] == 0 {
				queue = append(queue, consumer)
			}
		}
	}

	if visited == len(ids) {
		return result
	}

	stuck := make([]int64, 0, len(ids)-visited)
	for id, deg := range inDegree {
		if deg > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i] < stuck[j] })

	names := make([]string, len(stuck))
	for i, id := range stuck {
		names[i] = schema.ItemKey(id)
	}
	result.AddItemError("items", schema.ErrCodeCycleDetected,
		fmt.Sprintf("items %s can never unlock: their dependsOn conditions form a cycle", strings.Join(names, ", ")),
		names...)
	return result
}

// referencedItems lists the item ids a condition reads from, stubs included.
func referencedItems(dep *schema.Dependency) []int64 {
	var out []int64
	var walk func(n *schema.Dependency)
	walk = func(n *schema.Dependency) {
		switch n.Kind() {
		case schema.KindAction, schema.KindProximity, schema.KindStub:
			out = append(out, n.GeneralItemID)
		case schema.KindAnd, schema.KindOr, schema.KindTime:
			for _, c := range n.Children() {
				walk(c)
			}
		case schema.KindEmpty, schema.KindUnknown:
		}
	}
	walk(dep)
	return out
}

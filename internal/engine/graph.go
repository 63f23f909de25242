package engine

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/ir"
)

// Graph is the directed acyclic dependency graph of a declaration set.
type Graph struct {
	nodes    map[string]*graphNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type graphNode struct {
	addr      string
	declIndex int      // position in declaration order, for stable ties
	edges     []string // addresses this node depends on
	revEdges  []string // addresses that depend on this node
}

// refPattern matches ref:// markers embedded anywhere in a string value,
// including inside interpolated templates.
var refPattern = regexp.MustCompile(`ref://([A-Za-z0-9_]+\.[A-Za-z0-9_\[\]"-]+)/([A-Za-z0-9_]+)`)

// BuildGraph constructs the dependency graph from declared resources,
// resolving both explicit depends_on and implicit ref:// references.
// A reference to an undeclared address is an UnresolvedReferenceError; a
// cycle is a CycleError naming the participating addresses.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for i, res := range resources {
		g.nodes[res.Addr()] = &graphNode{addr: res.Addr(), declIndex: i}
	}

	for _, res := range resources {
		addr := res.Addr()
		node := g.nodes[addr]

		for _, dep := range res.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &diag.UnresolvedReferenceError{Address: addr, Target: dep}
			}
			node.edges = append(node.edges, dep)
		}

		for _, ref := range ExtractRefs(res.Attributes) {
			depAddr, _, ok := splitRef(ref)
			if !ok {
				continue
			}
			if _, exists := g.nodes[depAddr]; !exists {
				return nil, &diag.UnresolvedReferenceError{Address: addr, Target: depAddr}
			}
			if depAddr != addr {
				node.edges = append(node.edges, depAddr)
			}
		}
	}

	return g.finish()
}

// BuildGraphFromState constructs the graph from recorded state, using the
// dependency lists captured at apply time. Used for destroy ordering.
func BuildGraphFromState(resources []*ir.ResourceState) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}

	for i, res := range resources {
		g.nodes[res.Addr()] = &graphNode{addr: res.Addr(), declIndex: i}
	}

	for _, res := range resources {
		node := g.nodes[res.Addr()]
		for _, dep := range res.Dependencies {
			// A dependency may already have been removed from state.
			if _, ok := g.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}
	}

	return g.finish()
}

func (g *Graph) finish() (*Graph, error) {
	for addr, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, addr)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	g.revOrder = make([]string, len(order))
	for i, addr := range order {
		g.revOrder[len(order)-1-i] = addr
	}

	return g, nil
}

// CreationOrder returns addresses in dependency-respecting creation order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns addresses in reverse dependency order, safe for
// deletion: dependents come before the resources they depend on.
func (g *Graph) DestructionOrder() []string {
	return g.revOrder
}

// Dependencies returns the direct dependencies of the node at addr.
func (g *Graph) Dependencies(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the addresses that directly depend on addr.
func (g *Graph) Dependents(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.revEdges
	}
	return nil
}

// topoSort runs Kahn's algorithm. Ties between independent nodes are broken
// by declaration order so plans are reproducible across runs.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		inDegree[addr] = len(node.edges)
	}

	var ready []string
	for addr, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, addr)
		}
	}
	g.sortByDecl(ready)

	var sorted []string
	for len(ready) > 0 {
		addr := ready[0]
		ready = ready[1:]
		sorted = append(sorted, addr)

		var unlocked []string
		for _, dependent := range g.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			g.sortByDecl(ready)
		}
	}

	if len(sorted) != len(g.nodes) {
		var cyclic []string
		for addr, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, addr)
			}
		}
		sort.Strings(cyclic)
		return nil, &diag.CycleError{Addresses: cyclic}
	}

	return sorted, nil
}

func (g *Graph) sortByDecl(addrs []string) {
	sort.Slice(addrs, func(i, j int) bool {
		return g.nodes[addrs[i]].declIndex < g.nodes[addrs[j]].declIndex
	})
}

// ExtractRefs collects every ref:// marker reachable from a value, including
// markers embedded inside interpolated strings.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		refs = append(refs, refPattern.FindAllString(val, -1)...)
	case map[string]any:
		for _, k := range sortedKeys(val) {
			refs = append(refs, ExtractRefs(val[k])...)
		}
	case []any:
		for _, e := range val {
			refs = append(refs, ExtractRefs(e)...)
		}
	}
	return refs
}

// splitRef is like ir.ParseRef but tolerant of markers extracted from the
// middle of interpolated strings.
func splitRef(ref string) (addr, attr string, ok bool) {
	m := refPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContainsPending reports whether a value carries a pending:// marker
// anywhere in its structure.
func ContainsPending(v any) bool {
	switch val := v.(type) {
	case string:
		return ir.IsPending(val) || containsPendingSubstring(val)
	case map[string]any:
		for _, e := range val {
			if ContainsPending(e) {
				return true
			}
		}
	case []any:
		for _, e := range val {
			if ContainsPending(e) {
				return true
			}
		}
	}
	return false
}

var pendingPattern = regexp.MustCompile(regexp.QuoteMeta(ir.PendingScheme))

func containsPendingSubstring(s string) bool {
	return pendingPattern.MatchString(s)
}

// DescribeRef renders a marker for error messages as kind.name.attr.
func DescribeRef(ref string) string {
	addr, attr, ok := splitRef(ref)
	if !ok {
		return ref
	}
	return fmt.Sprintf("%s.%s", addr, attr)
}

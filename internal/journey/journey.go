// Package journey enumerates source-to-sink paths through a layered
// statement graph and consolidates near-duplicate paths into compact
// human-readable descriptions.
package journey

import (
	"sort"
	"strings"
)

// Node is one position on a path: layer 0 for origins, via.Order+1 for
// via entities, N+1 for destinations. ID and Label may be `\`-joined
// unions after consolidation.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Layer int    `json:"layer"`
}

type Entity struct {
	ID    string
	Label string
}

// ViaLayer is one ordered intermediate layer. From holds predecessor
// entity IDs; empty means "take the previous layer".
type ViaLayer struct {
	Order    int
	Entities []Entity
	From     map[string]struct{}
}

// DestLayer is a terminal layer.
type DestLayer struct {
	Entities []Entity
	From     map[string]struct{}
}

type Graph struct {
	Origins      []Entity
	Vias         []ViaLayer
	Destinations []DestLayer
}

type Path []Node

// Enumerate walks every origin forward through the via layers and
// emits each completed path to a destination entity. Worst case is
// exponential in the number of vias; real statements stay tiny.
func (g *Graph) Enumerate() []Path {
	layerCount := 0
	for _, via := range g.Vias {
		if via.Order+1 > layerCount {
			layerCount = via.Order + 1
		}
	}
	destinationLayer := layerCount + 1

	vias := make([]ViaLayer, len(g.Vias))
	copy(vias, g.Vias)
	sort.SliceStable(vias, func(i, j int) bool { return vias[i].Order < vias[j].Order })

	seen := map[string]struct{}{}
	var paths []Path

	record := func(path Path) {
		key := pathKey(path)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		paths = append(paths, path)
	}

	var extend func(path Path, current Entity, layer int)
	extend = func(path Path, current Entity, layer int) {
		// Destinations reachable from the current endpoint.
		for _, destination := range g.Destinations {
			connected := hasFrom(destination.From, current.ID)
			if !connected && len(destination.From) == 0 && len(vias) == 0 {
				connected = true
			}
			if !connected {
				continue
			}
			for _, entity := range destination.Entities {
				record(appendNode(path, Node{ID: entity.ID, Label: entity.Label, Layer: destinationLayer}))
			}
		}
		// Vias whose order matches the current layer.
		for _, via := range vias {
			if via.Order != layer {
				continue
			}
			connected := hasFrom(via.From, current.ID) || len(via.From) == 0
			if !connected {
				continue
			}
			for _, entity := range via.Entities {
				extend(appendNode(path, Node{ID: entity.ID, Label: entity.Label, Layer: via.Order + 1}),
					entity, via.Order+1)
			}
		}
	}

	for _, origin := range g.Origins {
		start := Path{{ID: origin.ID, Label: origin.Label, Layer: 0}}
		extend(start, origin, 0)
	}
	return paths
}

func hasFrom(from map[string]struct{}, id string) bool {
	_, ok := from[id]
	return ok
}

func appendNode(path Path, node Node) Path {
	out := make(Path, len(path)+1)
	copy(out, path)
	out[len(path)] = node
	return out
}

func pathKey(path Path) string {
	parts := make([]string, 0, len(path))
	for _, node := range path {
		parts = append(parts, node.ID)
	}
	return strings.Join(parts, "\x00")
}

// Consolidate iteratively merges equal-length paths that differ in
// exactly one position within the same layer, where neither entity set
// is a subset of the other. Runs to fixpoint.
func Consolidate(paths []Path) []Path {
	merged := make([]Path, len(paths))
	copy(merged, paths)

	for {
		changed := false
	outer:
		for i := 0; i < len(merged); i++ {
			for j := i + 1; j < len(merged); j++ {
				if combined, ok := mergePair(merged[i], merged[j]); ok {
					merged[i] = combined
					merged = append(merged[:j], merged[j+1:]...)
					changed = true
					break outer
				}
			}
		}
		if !changed {
			return merged
		}
	}
}

func mergePair(a, b Path) (Path, bool) {
	if len(a) != len(b) {
		return nil, false
	}
	diff := -1
	for i := range a {
		if a[i].ID == b[i].ID && a[i].Layer == b[i].Layer {
			continue
		}
		if a[i].Layer != b[i].Layer || diff != -1 {
			return nil, false
		}
		diff = i
	}
	if diff == -1 {
		return nil, false
	}
	setA := splitSet(a[diff].ID)
	setB := splitSet(b[diff].ID)
	if isSubset(setA, setB) || isSubset(setB, setA) {
		return nil, false
	}

	out := make(Path, len(a))
	copy(out, a)
	out[diff] = Node{
		ID:    joinUnion(a[diff].ID, b[diff].ID),
		Label: joinUnion(a[diff].Label, b[diff].Label),
		Layer: a[diff].Layer,
	}
	return out, true
}

func splitSet(id string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, part := range strings.Split(id, `\`) {
		out[part] = struct{}{}
	}
	return out
}

func isSubset(a, b map[string]struct{}) bool {
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

func joinUnion(a, b string) string {
	set := map[string]struct{}{}
	for _, part := range strings.Split(a, `\`) {
		set[part] = struct{}{}
	}
	for _, part := range strings.Split(b, `\`) {
		set[part] = struct{}{}
	}
	parts := make([]string, 0, len(set))
	for part := range set {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	return strings.Join(parts, `\`)
}

// Render turns one consolidated path into its journey sentence:
// "from A to B via C1 via C2". Union tokens become ", " joins at
// interior layers and " or " joins at the endpoints.
func Render(path Path) string {
	if len(path) < 2 {
		return ""
	}
	first := strings.ReplaceAll(path[0].Label, `\`, " or ")
	last := strings.ReplaceAll(path[len(path)-1].Label, `\`, " or ")

	var builder strings.Builder
	builder.WriteString("from ")
	builder.WriteString(first)
	builder.WriteString(" to ")
	builder.WriteString(last)
	for _, node := range path[1 : len(path)-1] {
		builder.WriteString(" via ")
		builder.WriteString(strings.ReplaceAll(node.Label, `\`, ", "))
	}
	return builder.String()
}

// Compute is the full derivation: enumerate, consolidate, render.
func Compute(g *Graph) ([]Path, []string) {
	paths := Consolidate(g.Enumerate())
	sentences := make([]string, 0, len(paths))
	for _, path := range paths {
		sentences = append(sentences, Render(path))
	}
	return paths, sentences
}

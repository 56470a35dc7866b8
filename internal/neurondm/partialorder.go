package neurondm

import (
	"encoding/json"
	"fmt"
)

// PartialOrder is the nested path structure emitted by the ontology: a
// node with zero or more child orders. A nil Node is the blank marker,
// which fans its children out without consuming a depth step.
type PartialOrder struct {
	Node     *EntityRef
	Children []*PartialOrder
}

func (p *PartialOrder) IsBlank() bool { return p.Node == nil }

// MarshalJSON encodes the tuple form: [node, child, child, ...] with
// "blank" standing in for the marker node.
func (p *PartialOrder) MarshalJSON() ([]byte, error) {
	elements := make([]interface{}, 0, len(p.Children)+1)
	if p.Node == nil {
		elements = append(elements, "blank")
	} else if p.Node.RegionLayer != nil {
		elements = append(elements, p.Node.RegionLayer)
	} else {
		elements = append(elements, p.Node.URI)
	}
	for _, child := range p.Children {
		elements = append(elements, child)
	}
	return json.Marshal(elements)
}

func (p *PartialOrder) UnmarshalJSON(data []byte) error {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err == nil && len(elements) > 0 {
		if looksLikeNode(elements[0]) {
			node, err := decodeNode(elements[0])
			if err != nil {
				return err
			}
			p.Node = node
			p.Children = nil
			for _, raw := range elements[1:] {
				child := &PartialOrder{}
				if err := json.Unmarshal(raw, child); err != nil {
					return err
				}
				p.Children = append(p.Children, child)
			}
			return nil
		}
	}
	// A bare node is a leaf.
	node, err := decodeNode(data)
	if err != nil {
		return fmt.Errorf("cannot decode partial order from %s", string(data))
	}
	p.Node = node
	p.Children = nil
	return nil
}

func looksLikeNode(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return true
	}
	var pair RegionLayerPair
	return json.Unmarshal(raw, &pair) == nil
}

func decodeNode(raw json.RawMessage) (*EntityRef, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "blank" {
			return nil, nil
		}
		return &EntityRef{URI: s}, nil
	}
	var pair RegionLayerPair
	if err := json.Unmarshal(raw, &pair); err == nil && (pair.Region != "" || pair.Layer != "") {
		return &EntityRef{RegionLayer: &pair}, nil
	}
	return nil, fmt.Errorf("cannot decode partial-order node from %s", string(raw))
}

// Blank builds a blank fan-out over the given children.
func Blank(children ...*PartialOrder) *PartialOrder {
	return &PartialOrder{Children: children}
}

// Chain builds a node with children.
func Chain(node EntityRef, children ...*PartialOrder) *PartialOrder {
	n := node
	return &PartialOrder{Node: &n, Children: children}
}

// Leaf builds a childless node.
func Leaf(node EntityRef) *PartialOrder {
	n := node
	return &PartialOrder{Node: &n}
}

package agenda

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tells leaf topics from topics with sub-items
type Kind int

const (
	Leaf Kind = iota
	Branch
)

// Node is one agenda item (TOP) at any depth. Leaf nodes never carry children.
type Node struct {
	Kind     Kind
	Title    string
	Children []Node
}

// NewLeaf creates a childless topic
func NewLeaf(title string) Node {
	return Node{Kind: Leaf, Title: title}
}

// NewBranch creates a topic with sub-items; an empty list yields a leaf
func NewBranch(title string, children ...Node) Node {
	if len(children) == 0 {
		return NewLeaf(title)
	}
	return Node{Kind: Branch, Title: title, Children: children}
}

// Size counts the node and all of its descendants
func (n Node) Size() int {
	size := 1
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}

// MarshalJSON writes the canonical {"titel", "unterpunkte"} form
func (n Node) MarshalJSON() ([]byte, error) {
	children := n.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		Title    string `json:"titel"`
		Children []Node `json:"unterpunkte"`
	}{n.Title, children})
}

// Parse decodes a stored agenda. Anything that is not a JSON list is an empty agenda.
func Parse(raw []byte) ([]Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid agenda: %w", err)
	}
	return Normalize(decoded), nil
}

// Normalize converts the loosely typed agenda (strings or objects with
// "titel" and "unterpunkte") into nodes
func Normalize(v interface{}) []Node {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, normalizeItem(item))
	}
	return nodes
}

func normalizeItem(item interface{}) Node {
	switch v := item.(type) {
	case string:
		return NewLeaf(v)
	case map[string]interface{}:
		title := ""
		if t, ok := v["titel"]; ok && t != nil {
			title = scalarString(t)
		}
		return NewBranch(title, Normalize(v["unterpunkte"])...)
	default:
		return NewLeaf(scalarString(v))
	}
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if s {
			return "True"
		}
		return "False"
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	}
}

// Number renders a position path like [1 0 2] as "2.1.3"
func Number(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(parts, ".")
}

// Line is one numbered agenda entry in document order
type Line struct {
	Number string
	Depth  int
	Title  string
}

// Lines flattens the agenda depth first with dotted numbering
func Lines(nodes []Node) []Line {
	var out []Line
	var walk func(n Node, path []int)
	walk = func(n Node, path []int) {
		out = append(out, Line{Number: Number(path), Depth: len(path) - 1, Title: n.Title})
		for i, c := range n.Children {
			walk(c, append(path[:len(path):len(path)], i))
		}
	}
	for i, n := range nodes {
		walk(n, []int{i})
	}
	return out
}

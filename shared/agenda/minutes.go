package agenda

import (
	"encoding/json"
	"fmt"
)

// Minutes is the text stored for one top-level topic: nothing, one text, or
// one text per node of the topic's subtree in document order
type Minutes struct {
	texts []string
}

// NoMinutes is the entry for topics without stored text
var NoMinutes = Minutes{}

// TextMinutes is a single text for the whole topic
func TextMinutes(s string) Minutes {
	return Minutes{texts: []string{s}}
}

// ListMinutes holds texts consumed node by node
func ListMinutes(texts ...string) Minutes {
	return Minutes{texts: texts}
}

// ParseMinutes decodes the stored per-topic minutes array
func ParseMinutes(raw []byte) ([]Minutes, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid minutes: %w", err)
	}
	entries, ok := decoded.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]Minutes, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case string:
			out = append(out, TextMinutes(v))
		case []interface{}:
			texts := make([]string, 0, len(v))
			for _, t := range v {
				texts = append(texts, scalarString(t))
			}
			out = append(out, ListMinutes(texts...))
		default:
			out = append(out, NoMinutes)
		}
	}
	return out, nil
}

// TopicMinutes is an agenda node annotated with its minutes text
type TopicMinutes struct {
	Title       string         `json:"title"`
	MinutesText string         `json:"minutes_text"`
	Children    []TopicMinutes `json:"child_nodes"`
}

// Attach pairs every top-level topic with the minutes entry at the same
// index. Inside a topic the entry's texts are handed out in pre-order, so
// position alone decides which node a text belongs to. Missing texts are
// empty and surplus texts are dropped.
func Attach(nodes []Node, minutes []Minutes) []TopicMinutes {
	out := make([]TopicMinutes, 0, len(nodes))
	for i, n := range nodes {
		entry := NoMinutes
		if i < len(minutes) {
			entry = minutes[i]
		}
		pos := 0
		out = append(out, attach(n, entry.texts, &pos))
	}
	return out
}

func attach(n Node, texts []string, pos *int) TopicMinutes {
	text := ""
	if *pos < len(texts) {
		text = texts[*pos]
	}
	*pos++

	children := make([]TopicMinutes, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, attach(c, texts, pos))
	}
	return TopicMinutes{Title: n.Title, MinutesText: text, Children: children}
}

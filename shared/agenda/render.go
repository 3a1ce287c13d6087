package agenda

import (
	"fmt"
	"strings"
)

const (
	outlineIndentWidth = 8
	minutesIndent      = "    "
)

// Run is a piece of styled text. A run with EndParagraph closes the current
// paragraph after its text; "\n" inside Text is a line break.
type Run struct {
	Text         string
	Bold         bool
	EndParagraph bool
}

// Runs is a rich text fragment handed to the document filler
type Runs []Run

// PlainText joins the runs, marking paragraph ends with a newline
func (r Runs) PlainText() string {
	var b strings.Builder
	for _, run := range r {
		b.WriteString(run.Text)
		if run.EndParagraph {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Outline renders the agenda as one line per node, indented by depth and
// bold on the top level
func Outline(nodes []Node) Runs {
	var runs Runs
	for _, line := range Lines(nodes) {
		indent := strings.Repeat(" ", line.Depth*outlineIndentWidth)
		runs = append(runs, Run{
			Text: fmt.Sprintf("%sTOP %s %s\n", indent, line.Number, line.Title),
			Bold: line.Depth == 0,
		})
	}
	return runs
}

// Transcript renders the annotated tree as bold topic headings each
// followed by its indented minutes text. Headings carry "TOP i" on the first
// level and "TOP i.j" on the second, where an untitled sub-item keeps the
// bare number; deeper items show their title only.
func Transcript(topics []TopicMinutes) Runs {
	var runs Runs
	for i, top := range topics {
		runs = append(runs, Run{Text: fmt.Sprintf("TOP %d: %s", i+1, strings.TrimSpace(top.Title)), Bold: true, EndParagraph: true})
		runs = appendMinutes(runs, top.MinutesText)
		for j, sub := range top.Children {
			runs = appendHeading(runs, fmt.Sprintf("TOP %d.%d", i+1, j+1), sub.Title)
			runs = appendMinutes(runs, sub.MinutesText)
			runs = appendDeeper(runs, sub.Children)
		}
	}
	return runs
}

func appendDeeper(runs Runs, topics []TopicMinutes) Runs {
	for _, t := range topics {
		if title := strings.TrimSpace(t.Title); title != "" {
			runs = append(runs, Run{Text: title, Bold: true, EndParagraph: true})
		}
		runs = appendMinutes(runs, t.MinutesText)
		runs = appendDeeper(runs, t.Children)
	}
	return runs
}

func appendHeading(runs Runs, label, title string) Runs {
	title = strings.TrimSpace(title)
	if title != "" {
		label = label + ": " + title
	}
	return append(runs, Run{Text: label, Bold: true, EndParagraph: true})
}

func appendMinutes(runs Runs, text string) Runs {
	text = strings.TrimSpace(text)
	if text == "" {
		return runs
	}
	indented := minutesIndent + strings.ReplaceAll(text, "\n", "\n"+minutesIndent)
	return append(runs, Run{Text: indented, EndParagraph: true})
}

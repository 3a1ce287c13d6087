// Package docgen fills DOCX templates, builds simple DOCX documents and
// converts them to PDF with a headless office suite.
package docgen

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/julis-sh/intranet/shared/agenda"
	"github.com/julis-sh/intranet/shared/config"
)

// Context maps placeholder names to values. A value is a string or an
// agenda.Runs; anything else is printed with fmt.
type Context map[string]interface{}

var (
	paragraphRe   = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	paragraphOpen = regexp.MustCompile(`^<w:p[^>]*>`)
	paragraphProp = regexp.MustCompile(`(?s)<w:pPr>.*?</w:pPr>`)
	runRe         = regexp.MustCompile(`(?s)<w:r[ >].*?</w:r>`)
	runProp       = regexp.MustCompile(`(?s)<w:rPr>.*?</w:rPr>`)
	textRe        = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	paragraphIDs  = regexp.MustCompile(`\s+w14:(?:paraId|textId)="[^"]*"`)
	runOpen       = regexp.MustCompile(`^<w:r[^>]*>`)
	placeholderRe = regexp.MustCompile(`\{\{\s*(r\s+)?([A-Za-z0-9_]+)\s*\}\}`)
	documentParts = regexp.MustCompile(`^word/(document|header\d*|footer\d*)\.xml$`)
)

// Filler replaces {{ key }} and {{r key }} placeholders in DOCX templates.
// Rich values take the character formatting from DocxConfig.
type Filler struct {
	style config.DocxConfig
}

// NewFiller creates a filler applying style to rich values
func NewFiller(style config.DocxConfig) *Filler {
	return &Filler{style: style}
}

// Fill renders template with ctx and returns the resulting document
func (f *Filler) Fill(template []byte, ctx Context) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(template), int64(len(template)))
	if err != nil {
		return nil, errors.Wrap(err, "open template")
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, file := range zr.File {
		data, err := readZipFile(file)
		if err != nil {
			return nil, err
		}
		if documentParts.MatchString(file.Name) {
			data = []byte(f.fillPart(string(data), ctx))
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: file.Name, Method: zip.Deflate})
		if err != nil {
			return nil, errors.Wrapf(err, "write %s", file.Name)
		}
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrapf(err, "write %s", file.Name)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close document")
	}
	return out.Bytes(), nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", file.Name)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", file.Name)
	}
	return data, nil
}

// fillPart rewrites every paragraph whose text holds a placeholder. Word
// splits text into runs at arbitrary points, so the paragraph text is joined
// first and the paragraph rebuilt with the formatting of its first run.
// Run content other than text (tabs, breaks, drawings) stays at its position.
func (f *Filler) fillPart(part string, ctx Context) string {
	return paragraphRe.ReplaceAllStringFunc(part, func(p string) string {
		var joined strings.Builder
		var anchors []anchor
		rPr := ""
		for _, r := range runRe.FindAllString(p, -1) {
			texts := textRe.FindAllStringSubmatch(r, -1)
			if len(texts) > 0 && rPr == "" {
				rPr = runProp.FindString(r)
			}
			if rest := textRe.ReplaceAllString(r, ""); hasContent(rest) {
				anchors = append(anchors, anchor{at: joined.Len(), xml: rest})
			}
			for _, m := range texts {
				joined.WriteString(html.UnescapeString(m[1]))
			}
		}
		text := joined.String()
		if !placeholderRe.MatchString(text) {
			return p
		}

		b := &paragraphBuilder{
			open:    paragraphOpen.FindString(p),
			pPr:     paragraphProp.FindString(p),
			anchors: anchors,
		}
		last := 0
		for _, loc := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
			b.addSource(rPr, text, last, loc[0])
			rich := loc[2] >= 0
			value := ctx[text[loc[4]:loc[5]]]
			if runs, ok := value.(agenda.Runs); ok {
				for _, run := range runs {
					b.addText(f.richProps(run.Bold), run.Text)
					if run.EndParagraph {
						b.breakParagraph()
					}
				}
			} else if rich {
				b.addText(f.richProps(false), stringValue(value))
			} else {
				b.addText(rPr, stringValue(value))
			}
			last = loc[1]
		}
		b.addSource(rPr, text, last, len(text))
		return b.String()
	})
}

// hasContent reports whether a run holds anything besides its properties
func hasContent(run string) bool {
	inner := strings.TrimSuffix(runOpen.ReplaceAllString(run, ""), "</w:r>")
	return strings.TrimSpace(runProp.ReplaceAllString(inner, "")) != ""
}

func (f *Filler) richProps(bold bool) string {
	var b strings.Builder
	b.WriteString("<w:rPr>")
	if f.style.Style != "" {
		fmt.Fprintf(&b, `<w:rStyle w:val="%s"/>`, escape(f.style.Style))
	}
	if f.style.Font != "" {
		font := escape(f.style.Font)
		fmt.Fprintf(&b, `<w:rFonts w:ascii="%s" w:hAnsi="%s" w:cs="%s"/>`, font, font, font)
	}
	if bold {
		b.WriteString("<w:b/>")
	}
	if f.style.SizePt > 0 {
		fmt.Fprintf(&b, `<w:sz w:val="%d"/>`, f.style.SizePt*2)
	}
	b.WriteString("</w:rPr>")
	return b.String()
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// anchor is non-text run content found before byte offset at of the
// joined paragraph text
type anchor struct {
	at  int
	xml string
}

type paragraphBuilder struct {
	open    string
	pPr     string
	anchors []anchor
	next    int
	current strings.Builder
	done    strings.Builder
	pending bool
}

func (b *paragraphBuilder) addText(rPr, text string) {
	if text == "" {
		return
	}
	b.pending = true
	b.current.WriteString(textRun(rPr, text))
}

// addSource copies text[from:to] of the original paragraph, placing the
// anchors that fall into the range
func (b *paragraphBuilder) addSource(rPr, text string, from, to int) {
	pos := from
	for b.next < len(b.anchors) && b.anchors[b.next].at <= to {
		if at := b.anchors[b.next].at; at > pos {
			b.addText(rPr, text[pos:at])
			pos = at
		}
		b.current.WriteString(b.anchors[b.next].xml)
		b.pending = true
		b.next++
	}
	b.addText(rPr, text[pos:to])
}

// breakParagraph closes the current paragraph. Only the first one keeps the
// paragraph ids of the template.
func (b *paragraphBuilder) breakParagraph() {
	open := b.open
	if b.done.Len() > 0 {
		open = paragraphIDs.ReplaceAllString(open, "")
	}
	b.done.WriteString(open + b.pPr + b.current.String() + "</w:p>")
	b.current.Reset()
	b.pending = false
}

func (b *paragraphBuilder) String() string {
	if b.pending || b.done.Len() == 0 {
		b.breakParagraph()
	}
	return b.done.String()
}

// textRun renders text as one run, turning newlines into line breaks
func textRun(rPr, text string) string {
	var b strings.Builder
	b.WriteString("<w:r>" + rPr)
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		if line != "" {
			b.WriteString(`<w:t xml:space="preserve">` + escape(line) + "</w:t>")
		}
	}
	b.WriteString("</w:r>")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

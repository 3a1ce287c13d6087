package docgen

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

const documentFooter = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1417" w:right="1417" w:bottom="1134" w:left="1417" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr></w:body></w:document>`

// Builder assembles a plain A4 document paragraph by paragraph
type Builder struct {
	body strings.Builder
}

// NewBuilder starts an empty document
func NewBuilder() *Builder {
	return &Builder{}
}

// Heading adds a bold paragraph; level 0 is the document title
func (b *Builder) Heading(text string, level int) *Builder {
	size := 28
	if level == 0 {
		size = 36
	}
	rPr := fmt.Sprintf(`<w:rPr><w:b/><w:sz w:val="%d"/></w:rPr>`, size)
	b.body.WriteString(`<w:p><w:pPr><w:spacing w:before="240" w:after="120"/></w:pPr>` + textRun(rPr, text) + `</w:p>`)
	return b
}

// Paragraph adds body text; newlines become line breaks
func (b *Builder) Paragraph(text string) *Builder {
	b.body.WriteString(`<w:p>` + textRun("", text) + `</w:p>`)
	return b
}

// Labeled adds "label: text" with a bold label
func (b *Builder) Labeled(label, text string) *Builder {
	b.body.WriteString(`<w:p>` + textRun("<w:rPr><w:b/></w:rPr>", label+": ") + textRun("", text) + `</w:p>`)
	return b
}

// Table adds a bordered table whose first row is bold
func (b *Builder) Table(header []string, rows [][]string) *Builder {
	b.body.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="5000" w:type="pct"/><w:tblBorders>`)
	for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(&b.body, `<w:%s w:val="single" w:sz="4" w:space="0" w:color="auto"/>`, side)
	}
	b.body.WriteString(`</w:tblBorders></w:tblPr>`)
	b.row(header, true)
	for _, r := range rows {
		b.row(r, false)
	}
	b.body.WriteString(`</w:tbl><w:p/>`)
	return b
}

func (b *Builder) row(cells []string, bold bool) {
	rPr := ""
	if bold {
		rPr = "<w:rPr><w:b/></w:rPr>"
	}
	b.body.WriteString(`<w:tr>`)
	for _, cell := range cells {
		b.body.WriteString(`<w:tc><w:tcPr><w:tcW w:w="0" w:type="auto"/></w:tcPr><w:p>` + textRun(rPr, cell) + `</w:p></w:tc>`)
	}
	b.body.WriteString(`</w:tr>`)
}

// Bytes packages the document
func (b *Builder) Bytes() ([]byte, error) {
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", rootRels},
		{"word/document.xml", documentHeader + b.body.String() + documentFooter},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s", p.name)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, errors.Wrapf(err, "write %s", p.name)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close document")
	}
	return out.Bytes(), nil
}

package docgen

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/agenda"
	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/config"
)

func makeDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": contentTypes,
		"word/document.xml":   documentHeader + body + documentFooter,
		"word/styles.xml":     "<styles>{{ titel }}</styles>",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readPart(t *testing.T, docx []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("part %s not found", name)
	return ""
}

func TestFill_SplitRuns(t *testing.T) {
	body := `<w:p><w:pPr><w:jc w:val="center"/></w:pPr>` +
		`<w:r><w:rPr><w:i/></w:rPr><w:t>Sitzung am {{ da</w:t></w:r>` +
		`<w:r><w:t>tum_dmy }} in {{ort}}</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>unverändert</w:t></w:r></w:p>`

	out, err := NewFiller(config.DocxConfig{}).Fill(makeDocx(t, body), Context{
		"datum_dmy": "01.05.2024",
		"ort":       "Kiel & Umgebung",
	})
	require.NoError(t, err)

	doc := readPart(t, out, "word/document.xml")
	assert.Contains(t, doc, `<w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:i/></w:rPr><w:t xml:space="preserve">Sitzung am </w:t></w:r>`)
	assert.Contains(t, doc, `<w:t xml:space="preserve">01.05.2024</w:t>`)
	assert.Contains(t, doc, `<w:t xml:space="preserve">Kiel &amp; Umgebung</w:t>`)
	assert.Contains(t, doc, `<w:t>unverändert</w:t>`)
	assert.NotContains(t, doc, "{{")

	// parts outside the document body stay untouched
	assert.Equal(t, "<styles>{{ titel }}</styles>", readPart(t, out, "word/styles.xml"))
}

func TestFill_UnknownKeyAndNewlines(t *testing.T) {
	body := `<w:p><w:r><w:t>{{ fehlt }}|{{ block }}</w:t></w:r></w:p>`
	out, err := NewFiller(config.DocxConfig{}).Fill(makeDocx(t, body), Context{"block": "a\nb"})
	require.NoError(t, err)

	doc := readPart(t, out, "word/document.xml")
	assert.Contains(t, doc, `<w:t xml:space="preserve">|</w:t>`)
	assert.Contains(t, doc, `<w:t xml:space="preserve">a</w:t><w:br/><w:t xml:space="preserve">b</w:t>`)
}

func TestFill_RichRunsSplitParagraphs(t *testing.T) {
	body := `<w:p><w:pPr><w:ind w:left="0"/></w:pPr><w:r><w:t>{{r top_mit_protokoll_text }}</w:t></w:r></w:p>`
	runs := agenda.Runs{
		{Text: "TOP 1: Begrüßung", Bold: true, EndParagraph: true},
		{Text: "    Alle da", EndParagraph: true},
	}
	filler := NewFiller(config.DocxConfig{Font: "Arial", SizePt: 11, Style: "Standard"})
	out, err := filler.Fill(makeDocx(t, body), Context{"top_mit_protokoll_text": runs})
	require.NoError(t, err)

	doc := readPart(t, out, "word/document.xml")
	assert.Equal(t, 2, strings.Count(doc, `<w:p><w:pPr><w:ind w:left="0"/></w:pPr>`))
	assert.Contains(t, doc, `<w:rStyle w:val="Standard"/><w:rFonts w:ascii="Arial" w:hAnsi="Arial" w:cs="Arial"/><w:b/><w:sz w:val="22"/>`)
	assert.Contains(t, doc, `TOP 1: Begrüßung`)
	assert.Contains(t, doc, `    Alle da`)
}

func TestFill_SplitParagraphKeepsLayoutRuns(t *testing.T) {
	body := `<w:p w14:paraId="1A2B3C4D" w14:textId="77777777"><w:r><w:rPr><w:b/></w:rPr><w:tab/><w:t>Tagesordnung:</w:t></w:r>` +
		`<w:r><w:drawing><wp:inline/></w:drawing></w:r>` +
		`<w:r><w:t>{{r tagesordnung }}</w:t></w:r><w:r><w:br/></w:r><w:r><w:t>Ende</w:t></w:r></w:p>`
	runs := agenda.Runs{
		{Text: "TOP 1 Begrüßung", Bold: true, EndParagraph: true},
		{Text: "TOP 2 Berichte", Bold: true, EndParagraph: true},
	}
	out, err := NewFiller(config.DocxConfig{}).Fill(makeDocx(t, body), Context{"tagesordnung": runs})
	require.NoError(t, err)

	doc := readPart(t, out, "word/document.xml")
	assert.Equal(t, 1, strings.Count(doc, `w14:paraId="1A2B3C4D"`))
	assert.Equal(t, 1, strings.Count(doc, `w14:textId="77777777"`))
	assert.Equal(t, 3, strings.Count(doc, "<w:p>")+strings.Count(doc, "<w:p "))

	tab := strings.Index(doc, `<w:r><w:rPr><w:b/></w:rPr><w:tab/></w:r>`)
	heading := strings.Index(doc, "Tagesordnung:")
	drawing := strings.Index(doc, `<w:r><w:drawing><wp:inline/></w:drawing></w:r>`)
	first := strings.Index(doc, "TOP 1 Begrüßung")
	lineBreak := strings.Index(doc, `<w:r><w:br/></w:r>`)
	end := strings.Index(doc, "Ende")
	for _, i := range []int{tab, heading, drawing, first, lineBreak, end} {
		require.NotEqual(t, -1, i, doc)
	}
	assert.Less(t, tab, heading)
	assert.Less(t, heading, drawing)
	assert.Less(t, drawing, first)
	assert.Less(t, first, lineBreak)
	assert.Less(t, lineBreak, end)
}

func TestFill_InvalidTemplate(t *testing.T) {
	_, err := NewFiller(config.DocxConfig{}).Fill([]byte("not a zip"), Context{})
	assert.Error(t, err)
}

func TestBuilder(t *testing.T) {
	data, err := NewBuilder().
		Heading("Änderungsantrag", 0).
		Labeled("Antragsteller", "Kreisverband <Kiel>").
		Paragraph("Zeile 1\nZeile 2").
		Table([]string{"Alt", "Neu"}, [][]string{{"a", "b"}}).
		Bytes()
	require.NoError(t, err)

	doc := readPart(t, data, "word/document.xml")
	assert.Contains(t, doc, "Änderungsantrag")
	assert.Contains(t, doc, "Kreisverband &lt;Kiel&gt;")
	assert.Contains(t, doc, "<w:tbl>")
	assert.Contains(t, readPart(t, data, "_rels/.rels"), "word/document.xml")
}

func TestConverter_FallsBackToSoffice(t *testing.T) {
	dir := t.TempDir()
	docx := filepath.Join(dir, "protokoll_1.docx")
	require.NoError(t, os.WriteFile(docx, []byte("docx"), 0o600))

	var calls []string
	c := NewConverter()
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name)
		if name == "libreoffice" {
			return nil, errors.New("executable file not found")
		}
		assert.Equal(t, []string{"--headless", "--convert-to", "pdf", "--outdir", dir, docx}, args)
		return nil, os.WriteFile(filepath.Join(dir, "protokoll_1.pdf"), []byte("%PDF"), 0o600)
	}

	pdf, err := c.ToPDF(context.Background(), docx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "protokoll_1.pdf"), pdf)
	assert.Equal(t, []string{"libreoffice", "soffice"}, calls)
}

func TestConverter_Failure(t *testing.T) {
	c := NewConverter()
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("boom"), errors.New("exit status 1")
	}

	_, err := c.ConvertBytes(context.Background(), []byte("docx"), "einladung.docx")
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))

	_, err = c.ToPDF(context.Background(), filepath.Join(t.TempDir(), "missing.docx"))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPDFName(t *testing.T) {
	assert.Equal(t, "einladung_1_2024-05-01.pdf", PDFName("sitzungen/einladung_1_2024-05-01.docx"))
}

package docgen

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/metrics"
	"github.com/julis-sh/intranet/shared/utils"
)

// ConversionTimeout bounds a single converter run
const ConversionTimeout = 60 * time.Second

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Converter turns DOCX files into PDF using LibreOffice in headless mode
type Converter struct {
	binaries []string
	timeout  time.Duration
	breaker  *utils.CircuitBreaker
	run      runFunc
}

// NewConverter tries libreoffice first and soffice second
func NewConverter() *Converter {
	return &Converter{
		binaries: []string{"libreoffice", "soffice"},
		timeout:  ConversionTimeout,
		breaker:  utils.NewCircuitBreaker("pdf-converter", 3, time.Minute),
		run:      runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// ToPDF converts docxPath and returns the path of the sibling PDF
func (c *Converter) ToPDF(ctx context.Context, docxPath string) (string, error) {
	docxPath, err := filepath.Abs(docxPath)
	if err != nil {
		return "", apperr.Internal("failed to resolve document path", err)
	}
	if _, err := os.Stat(docxPath); err != nil {
		return "", apperr.NotFound("Document file")
	}

	start := time.Now()
	outDir := filepath.Dir(docxPath)
	pdfPath := strings.TrimSuffix(docxPath, filepath.Ext(docxPath)) + ".pdf"

	err = c.breaker.Call(func() error {
		var lastErr error
		for _, bin := range c.binaries {
			runCtx, cancel := context.WithTimeout(ctx, c.timeout)
			stderr, err := c.run(runCtx, bin, "--headless", "--convert-to", "pdf", "--outdir", outDir, docxPath)
			cancel()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"converter": bin,
					"stderr":    truncate(string(stderr), 500),
				}).WithError(err).Debug("PDF conversion attempt failed")
				lastErr = err
				continue
			}
			if _, err := os.Stat(pdfPath); err != nil {
				return errors.Errorf("%s produced no PDF", bin)
			}
			return nil
		}
		if lastErr == nil {
			lastErr = errors.New("no converter available")
		}
		return lastErr
	})
	metrics.ObserveDocumentRender("pdf", metrics.Result(err), time.Since(start))
	if err != nil {
		return "", apperr.ExternalService("PDF conversion failed (LibreOffice required)", err)
	}
	return pdfPath, nil
}

// ConvertBytes converts an in-memory DOCX in a scratch directory
func (c *Converter) ConvertBytes(ctx context.Context, docx []byte, name string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "docgen-*")
	if err != nil {
		return nil, apperr.Internal("failed to create scratch dir", err)
	}
	defer os.RemoveAll(dir)

	docxPath := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(docxPath, docx, 0o600); err != nil {
		return nil, apperr.Internal("failed to write document", err)
	}
	pdfPath, err := c.ToPDF(ctx, docxPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, apperr.Internal("failed to read converted PDF", err)
	}
	return data, nil
}

// PDFName swaps the extension of a document file name
func PDFName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".pdf"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package ingestion_engine

import (
	"context"
	"os"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/models"
)

// Parser extracts text from a local file and chunks it. PDFs are read
// page by page so chunks keep their page number; other content types go
// through docconv and land on page 1. Parse failures are always
// permanent: a corrupt file will not get better on retry.
type Parser struct {
	cfg *IngestConfig
}

func NewParser(cfg *IngestConfig) *Parser {
	return &Parser{cfg: cfg}
}

func (p *Parser) Parse(ctx context.Context, path string, contentType string) ([]models.DocumentChunk, error) {
	var (
		pages []pageText
		err   error
	)
	if contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(path), ".pdf") {
		pages, err = parsePDF(path)
	} else {
		pages, err = parseWithDocconv(path, contentType)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, core.Transient(core.StageParse, err)
	}

	chunks := chunkPages(pages, p.cfg.TargetTokens, p.cfg.OverlapTokens)
	if len(chunks) == 0 {
		return nil, core.Permanentf(core.StageParse, "no extractable text in %q", path)
	}
	return chunks, nil
}

// parsePDF extracts one pageText per PDF page, preserving natural page
// order (1-based).
func parsePDF(path string) ([]pageText, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, core.Permanentf(core.StageParse, "open pdf %q: %v", path, err)
	}
	defer f.Close()

	var pages []pageText
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, core.Permanentf(core.StageParse, "extract pdf page %d of %q: %v", i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, pageText{Page: i, Text: text})
	}
	return pages, nil
}

// parseWithDocconv handles everything that is not a PDF. docconv has no
// notion of pages, so the whole body lands on page 1.
func parseWithDocconv(path string, contentType string) ([]pageText, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.Permanentf(core.StageParse, "open %q: %v", path, err)
	}
	defer file.Close()

	res, err := docconv.Convert(file, contentType, false)
	if err != nil {
		return nil, core.Permanentf(core.StageParse, "docconv %q (%s): %v", path, contentType, err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, core.Permanentf(core.StageParse, "docconv extracted empty text from %q", path)
	}
	return []pageText{{Page: 1, Text: res.Body}}, nil
}

var _ core.DocumentParser = (*Parser)(nil)

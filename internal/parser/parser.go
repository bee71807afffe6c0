package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"support-rag/internal/config"
	"support-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Fetcher extracts marker-annotated text from local documents.
type Fetcher struct {
	cfg *config.RAGConfig
}

func NewFetcher(cfg *config.RAGConfig) *Fetcher {
	if cfg == nil {
		cfg = &config.RAGConfig{}
	}
	return &Fetcher{cfg: cfg}
}

var (
	slideFileRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	docxParaRe  = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxTextRe  = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	slideTextRe = regexp.MustCompile(`<a:t>([^<]*)</a:t>`)
)

// MediumOf classifies a document reference by its extension.
func MediumOf(ref string) (models.Medium, bool) {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".pptx":
		return models.MediumSlideDeck, true
	case ".xlsx", ".xlsm", ".xltx":
		return models.MediumTabular, true
	case ".docx", ".pdf", ".md", ".markdown", ".txt":
		return models.MediumProse, true
	default:
		return "", false
	}
}

// Fetch never fails: on error the document text is a short placeholder so
// the rest of the pipeline degrades instead of stopping.
func (f *Fetcher) Fetch(ctx context.Context, ref string) models.Document {
	medium, ok := MediumOf(ref)
	name := filepath.Base(ref)
	if !ok {
		log.Warn().Str("ref", ref).Msg("Unsupported document type")
		return models.Document{Ref: ref, Medium: models.MediumProse, Text: fmt.Sprintf("(unsupported document: %s)", name)}
	}
	if err := ctx.Err(); err != nil {
		return models.Document{Ref: ref, Medium: medium, Text: placeholder(medium, name)}
	}

	var (
		out string
		err error
	)
	switch medium {
	case models.MediumSlideDeck:
		out, err = parsePPTX(ref)
	case models.MediumTabular:
		out, err = f.parseXLSX(ref)
	default:
		out, err = parseProse(ref)
	}
	if err != nil {
		log.Error().Err(err).Str("ref", ref).Str("medium", string(medium)).Msg("Error extracting document")
		out = placeholder(medium, name)
	}
	return models.Document{Ref: ref, Medium: medium, Text: out}
}

// FetchAll fetches slide decks, then spreadsheets, then prose, keeping the
// configured order within each group.
func (f *Fetcher) FetchAll(ctx context.Context, refs []string) []models.Document {
	groups := map[models.Medium][]string{}
	var other []string
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if m, ok := MediumOf(ref); ok {
			groups[m] = append(groups[m], ref)
		} else {
			other = append(other, ref)
		}
	}

	var docs []models.Document
	for _, m := range []models.Medium{models.MediumSlideDeck, models.MediumTabular, models.MediumProse} {
		for _, ref := range groups[m] {
			docs = append(docs, f.Fetch(ctx, ref))
		}
	}
	for _, ref := range other {
		docs = append(docs, f.Fetch(ctx, ref))
	}
	return docs
}

// JoinDocuments concatenates document texts with blank lines between them.
func JoinDocuments(docs []models.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Text) != "" {
			parts = append(parts, d.Text)
		}
	}
	return strings.Join(parts, models.ContextSeparator)
}

func placeholder(m models.Medium, name string) string {
	switch m {
	case models.MediumSlideDeck:
		return fmt.Sprintf("(failed to read slide deck: %s)", name)
	case models.MediumTabular:
		return fmt.Sprintf("(failed to read spreadsheet: %s)", name)
	default:
		return fmt.Sprintf("(failed to read document: %s)", name)
	}
}

func parsePPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideFileRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var out []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		title, body := extractSlideText(string(data))
		if title == "" {
			title = "(untitled)"
		}
		out = append(out, strings.Join([]string{
			models.SectionMarker(fmt.Sprintf("slide %d", s.num)),
			"[title] " + title,
			body,
		}, "\n"))
	}
	return strings.Join(out, models.ContextSeparator), nil
}

// extractSlideText returns the title placeholder text and the remaining
// shape text of one slide XML part.
func extractSlideText(xmlContent string) (string, string) {
	var title string
	var body []string
	shapes := strings.Split(xmlContent, "<p:sp>")
	for i, shape := range shapes {
		if i == 0 {
			continue
		}
		t := strings.TrimSpace(extractTextFromXML(shape))
		if t == "" {
			continue
		}
		isTitle := strings.Contains(shape, `type="title"`) || strings.Contains(shape, `type="ctrTitle"`)
		if title == "" && isTitle {
			title = t
			continue
		}
		body = append(body, t)
	}
	return title, strings.Join(body, "\n")
}

func extractTextFromXML(xmlContent string) string {
	var lines []string
	for _, para := range strings.Split(xmlContent, "</a:p>") {
		var line strings.Builder
		for _, m := range slideTextRe.FindAllStringSubmatch(para, -1) {
			line.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

func (f *Fetcher) parseXLSX(filePath string) (string, error) {
	wb, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer wb.Close()

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	sheets := wb.GetSheetList()
	if only, scoped := f.cfg.ScopeFor(name); scoped {
		idx, err := wb.GetSheetIndex(only)
		if err != nil || idx < 0 {
			return fmt.Sprintf("(workbook %q is scoped to sheet %q, but that sheet was not found)", name, only), nil
		}
		sheets = []string{only}
	}

	var out []string
	for _, sheetName := range sheets {
		rows, err := wb.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Error reading sheet")
			continue
		}
		if len(rows) == 0 {
			continue
		}
		out = append(out, formatSheet(sheetName, rows))
	}
	return strings.Join(out, models.ContextSeparator), nil
}

func formatSheet(sheetName string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(models.SectionMarker("sheet: " + sheetName))
	b.WriteString("\n[header] ")
	b.WriteString(strings.Join(rows[0], " | "))
	for i, row := range rows[1:] {
		fmt.Fprintf(&b, "\n%d: %s", i+2, strings.Join(row, " | "))
	}
	return b.String()
}

func parseProse(filePath string) (string, error) {
	name := filepath.Base(filePath)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		content, err := parseDOCX(filePath)
		if err != nil {
			return "", err
		}
		return proseSection(name, content), nil
	case ".md", ".markdown":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}
		return proseSection(name, markdownToText(data)), nil
	default:
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}
		return proseSection(name, string(data)), nil
	}
}

func proseSection(name, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return models.SectionMarker("doc: "+name) + "\n" + content
}

func parsePDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	name := filepath.Base(filePath)
	var out []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		out = append(out, models.SectionMarker(fmt.Sprintf("doc: %s p.%d", name, i))+"\n"+strings.TrimSpace(pageText))
	}
	return strings.Join(out, models.ContextSeparator), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return docxXMLToText(r.Editable().GetContent()), nil
}

// docxXMLToText keeps one line per non-empty paragraph of document.xml.
func docxXMLToText(content string) string {
	var lines []string
	for _, para := range docxParaRe.FindAllString(content, -1) {
		var line strings.Builder
		for _, m := range docxTextRe.FindAllStringSubmatch(para, -1) {
			line.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// markdownToText renders the text content of a markdown document, one line
// per block, dropping markup.
func markdownToText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
			return ast.WalkContinue, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *extast.TableCell:
			if !entering {
				buf.WriteString(" | ")
			}
			return ast.WalkContinue, nil
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})

	var lines []string
	for _, l := range strings.Split(buf.String(), "\n") {
		l = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(l), "|"))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

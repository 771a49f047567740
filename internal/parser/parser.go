package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"pdf-analyzer/internal/apperrors"
)

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// Document is the concatenated text of every page of every uploaded file.
type Document struct {
	Text  string
	Files int
	Pages int
}

var (
	docxTextRe  = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	slideTextRe = regexp.MustCompile(`<a:t>([^<]*)</a:t>`)
	slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// SupportedExtensions lists the file extensions ExtractPages understands.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".txt", ".md"}
}

// ExtractText extracts every file in upload order and concatenates the
// pages, in page order, into a single text.
func ExtractText(files []File) (Document, error) {
	if len(files) == 0 {
		return Document{}, apperrors.Wrap(apperrors.CodeInvalidInput, "no files uploaded", nil)
	}
	var (
		text  strings.Builder
		pages int
	)
	for _, f := range files {
		filePages, err := ExtractPages(f.Name, f.Data)
		if err != nil {
			return Document{}, err
		}
		log.Debug().Str("file", f.Name).Int("pages", len(filePages)).Msg("Extracted file")
		for _, page := range filePages {
			text.WriteString(page)
		}
		pages += len(filePages)
	}
	return Document{Text: text.String(), Files: len(files), Pages: pages}, nil
}

// ExtractPages returns the text of each page of a single file. The format is
// picked from the file extension.
func ExtractPages(name string, data []byte) (pages []string, err error) {
	// ledongthuc/pdf and the office readers panic on some malformed input
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = apperrors.Wrap(apperrors.CodeExtraction, fmt.Sprintf("failed to read %s", name), fmt.Errorf("%v", r))
		}
	}()

	if len(data) == 0 {
		return nil, apperrors.Wrap(apperrors.CodeExtraction, fmt.Sprintf("%s is empty", name), nil)
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(data)
	case ".docx":
		pages, err = parseDOCX(data)
	case ".pptx":
		pages, err = parsePPTX(data)
	case ".xlsx":
		pages, err = parseXLSX(data)
	case ".xlsm", ".xltx":
		pages, err = parseSpreadsheet(data)
	case ".txt", ".md":
		pages = []string{string(data)}
	default:
		return nil, apperrors.Wrap(apperrors.CodeExtraction, fmt.Sprintf("unsupported file format: %q", ext), nil)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeExtraction, fmt.Sprintf("failed to read %s", name), err)
	}
	return pages, nil
}

func parsePDF(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return pages, nil
}

func parseDOCX(data []byte) ([]string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var text strings.Builder
	for _, para := range strings.Split(r.Editable().GetContent(), "</w:p>") {
		matches := docxTextRe.FindAllStringSubmatch(para, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			text.WriteString(html.UnescapeString(m[1]))
		}
		text.WriteString("\n")
	}
	// DOCX has no page numbers
	return []string{text.String()}, nil
}

func parsePPTX(data []byte) ([]string, error) {
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, text: extractSlideText(string(body))})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		pages = append(pages, s.text)
	}
	return pages, nil
}

func parseXLSX(data []byte) ([]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, text.String())
	}
	return pages, nil
}

func parseSpreadsheet(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, text.String())
	}
	return pages, nil
}

func extractSlideText(xmlContent string) string {
	var parts []string
	for _, m := range slideTextRe.FindAllStringSubmatch(xmlContent, -1) {
		parts = append(parts, html.UnescapeString(m[1]))
	}
	return strings.Join(parts, " ")
}

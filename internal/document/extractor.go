package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"resumind/internal/logger"
)

// Kind 文档类型
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

// ErrUnsupported 不支持的文档类型
var ErrUnsupported = errors.New("不支持的文档类型")

// ErrEmptyText 文档中没有可提取的文本
var ErrEmptyText = errors.New("文档中没有可提取的文本")

// ErrMalformedPDF 无法解析的 PDF：文件头、交叉引用表或对象损坏
var ErrMalformedPDF = errors.New("malformed pdf")

// recoverPDF PDF 解析库遇到损坏的交叉引用表时会直接 panic，这里转换成 ErrMalformedPDF
func recoverPDF(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformedPDF, r)
	}
}

// DetectKind 先看扩展名，再看文件头
func DetectKind(filename string, data []byte) Kind {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt", ".md", ".text":
		return KindText
	}
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return KindPDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return KindDOCX
	}
	return KindUnknown
}

// TextExtractor 从简历文件中提取纯文本
type TextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

// NewTextExtractor 初始化 Eino PDF 解析器，不按页面分割以获取整份文本
func NewTextExtractor(ctx context.Context) (*TextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}
	return &TextExtractor{parser: p, timeout: 30 * time.Second}, nil
}

// Extract 按文档类型提取文本
func (e *TextExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	start := time.Now()
	kind := DetectKind(filename, data)

	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = e.extractPDF(ctx, filename, data)
	case KindDOCX:
		text, err = DocxText(data)
	case KindText:
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filename)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyText, filename)
	}

	logger.Debug().
		Str("file", filename).
		Str("kind", string(kind)).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("文档文本提取完成")
	return text, nil
}

func (e *TextExtractor) extractPDF(ctx context.Context, uri string, data []byte) (text string, err error) {
	defer recoverPDF(&err)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data), einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}

	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(doc.Content)
	}
	return b.String(), nil
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// DocxText 读取 docx 正文，段落之间用换行分隔
func DocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	raw := doc.Editable().GetContent()
	raw = docxParagraphEnd.ReplaceAllString(raw, "\n")
	raw = xmlTag.ReplaceAllString(raw, "")
	return html.UnescapeString(raw), nil
}

// PDFPageCount 返回 PDF 页数
func PDFPageCount(data []byte) (n int, err error) {
	defer recoverPDF(&err)

	r, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPDF, err)
	}
	return r.NumPage(), nil
}

// PDFPageText 返回指定页（从 1 开始）的纯文本
func PDFPageText(data []byte, page int) (text string, err error) {
	defer recoverPDF(&err)

	r, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPDF, err)
	}
	if page < 1 || page > r.NumPage() {
		return "", fmt.Errorf("页码 %d 超出范围 (共 %d 页)", page, r.NumPage())
	}
	p := r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"resumind/internal/config"
	"resumind/internal/document"
)

// ErrNoImage 没有生成预览图
var ErrNoImage = errors.New("未能生成预览图")

// Image 生成的预览图
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Converter 将文档第一页渲染为 PNG。字体对象不支持并发，渲染时加锁
type Converter struct {
	mu       sync.Mutex
	width    int
	height   int
	maxLines int
	margin   int
	body     font.Face
	heading  font.Face
}

// NewConverter 加载内置 Go 字体
func NewConverter(cfg config.PreviewConfig) (*Converter, error) {
	if cfg.Width <= 0 {
		cfg.Width = 850
	}
	if cfg.Height <= 0 {
		cfg.Height = 1100
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 70
	}

	body, err := loadFace(goregular.TTF, 13)
	if err != nil {
		return nil, err
	}
	heading, err := loadFace(gobold.TTF, 18)
	if err != nil {
		return nil, err
	}

	return &Converter{
		width:    cfg.Width,
		height:   cfg.Height,
		maxLines: cfg.MaxLines,
		margin:   48,
		body:     body,
		heading:  heading,
	}, nil
}

func loadFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("创建字体失败: %w", err)
	}
	return face, nil
}

// Convert 提取第一页文本并渲染；没有可渲染的文本时返回 ErrNoImage
func (c *Converter) Convert(ctx context.Context, filename string, data []byte) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := firstPageText(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoImage, err)
	}

	c.mu.Lock()
	lines := c.layout(text)
	if len(lines) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s 没有可渲染的文本", ErrNoImage, filename)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	c.drawLines(canvas, lines)
	c.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("PNG 编码失败: %w", err)
	}

	return &Image{
		Filename:    PreviewName(filename),
		ContentType: "image/png",
		Data:        buf.Bytes(),
		Width:       c.width,
		Height:      c.height,
	}, nil
}

// PreviewName cv.pdf -> cv.png
func PreviewName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "preview.png"
	}
	return strings.TrimSuffix(base, path.Ext(base)) + ".png"
}

func firstPageText(filename string, data []byte) (string, error) {
	switch document.DetectKind(filename, data) {
	case document.KindPDF:
		return document.PDFPageText(data, 1)
	case document.KindDOCX:
		return document.DocxText(data)
	case document.KindText:
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", document.ErrUnsupported, filename)
	}
}

// layout 按可用宽度折行，最多 maxLines 行，首个非空行作为标题
func (c *Converter) layout(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	maxWidth := fixed.I(c.width - 2*c.margin)

	var out []line
	first := true
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(strings.ReplaceAll(raw, "\t", "    "), " ")
		if strings.TrimSpace(raw) == "" {
			if len(out) > 0 && out[len(out)-1].text != "" {
				out = append(out, line{})
			}
			continue
		}
		face := c.body
		if first {
			face = c.heading
		}
		for _, wrapped := range wrap(face, raw, maxWidth) {
			out = append(out, line{text: wrapped, heading: first})
			if len(out) >= c.maxLines {
				return out
			}
		}
		first = false
	}

	for len(out) > 0 && out[len(out)-1].text == "" {
		out = out[:len(out)-1]
	}
	return out
}

type line struct {
	text    string
	heading bool
}

func wrap(face font.Face, s string, maxWidth fixed.Int26_6) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, w := range words[1:] {
		candidate := current + " " + w
		if font.MeasureString(face, candidate) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = w
	}
	return append(lines, current)
}

func (c *Converter) drawLines(dst draw.Image, lines []line) {
	ink := image.NewUniform(color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff})
	y := c.margin
	for _, l := range lines {
		face := c.body
		if l.heading {
			face = c.heading
		}
		lineHeight := face.Metrics().Height.Ceil() + 4
		y += lineHeight
		if y > c.height-c.margin {
			return
		}
		d := &font.Drawer{
			Dst:  dst,
			Src:  ink,
			Face: face,
			Dot:  fixed.P(c.margin, y),
		}
		d.DrawString(l.text)
	}
}

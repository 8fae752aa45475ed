// Package imaging turns uploaded receipts into compact JPEG images for the
// vision model.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// Options controls the output image
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	Grayscale bool
}

// DefaultOptions returns 1000x1400, quality 70, grayscale
func DefaultOptions() Options {
	return Options{MaxWidth: 1000, MaxHeight: 1400, Quality: 70, Grayscale: true}
}

// Preparer implements port.DocumentPreparer
type Preparer struct {
	opts   Options
	logger *zap.Logger
}

// NewPreparer creates a Preparer
func NewPreparer(opts Options, logger *zap.Logger) *Preparer {
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		def := DefaultOptions()
		opts.MaxWidth, opts.MaxHeight = def.MaxWidth, def.MaxHeight
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}
	return &Preparer{opts: opts, logger: logger}
}

// Prepare decodes doc (first page for PDFs), scales it down to fit the
// configured bounds and re-encodes it as JPEG
func (p *Preparer) Prepare(ctx context.Context, doc port.Document) (port.Document, error) {
	img, err := decode(doc)
	if err != nil {
		return port.Document{}, err
	}

	out := p.resize(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.opts.Quality}); err != nil {
		return port.Document{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	p.logger.Debug("Prepared receipt image",
		zap.String("file", doc.Name),
		zap.Int("original_size", len(doc.Data)),
		zap.Int("prepared_size", buf.Len()),
		zap.Int("width", out.Bounds().Dx()),
		zap.Int("height", out.Bounds().Dy()))

	return port.Document{
		Name:      doc.Name,
		MediaType: entity.MediaTypeJPEG,
		Data:      buf.Bytes(),
	}, nil
}

func decode(doc port.Document) (image.Image, error) {
	switch doc.MediaType {
	case entity.MediaTypePDF:
		return renderFirstPage(doc.Data)
	case entity.MediaTypePNG:
		img, err := png.Decode(bytes.NewReader(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode PNG: %w", err)
		}
		return img, nil
	case entity.MediaTypeJPEG:
		img, err := jpeg.Decode(bytes.NewReader(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode JPEG: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported media type: %s", doc.MediaType)
	}
}

func renderFirstPage(data []byte) (image.Image, error) {
	pdf, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer pdf.Close()

	if pdf.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := pdf.Image(0)
	if err != nil {
		return nil, fmt.Errorf("failed to render PDF page: %w", err)
	}
	return img, nil
}

// resize scales img to fit within the bounds, keeping its aspect ratio.
// Images are never enlarged.
func (p *Preparer) resize(img image.Image) image.Image {
	b := img.Bounds()
	w, h := scaledSize(b.Dx(), b.Dy(), p.opts.MaxWidth, p.opts.MaxHeight)
	rect := image.Rect(0, 0, w, h)

	var dst draw.Image
	if p.opts.Grayscale {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}

	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, rect, img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, rect, img, b, draw.Src, nil)
	}
	return dst
}

func scaledSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	sw := max(1, int(float64(w)*ratio))
	sh := max(1, int(float64(h)*ratio))
	return sw, sh
}

var _ port.DocumentPreparer = (*Preparer)(nil)

// Package sigcapture turns every accepted signature payload into one PNG
// of fixed size, so storage and certificates never branch on capture method.
package sigcapture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

const (
	DefaultWidth          = 600
	DefaultHeight         = 200
	DefaultMaxUploadBytes = 512 << 10
	maxSourcePixels       = 4096 * 4096
	maxTypedRunes         = 120
	margin                = 16
)

var ink = color.NRGBA{R: 0x10, G: 0x1c, B: 0x4a, A: 0xff}

type Normalizer struct {
	Width          int
	Height         int
	MaxUploadBytes int
	font           *opentype.Font
}

func New(maxUploadBytes int) (*Normalizer, error) {
	f, err := opentype.Parse(goitalic.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse signature font: %w", err)
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Normalizer{Width: DefaultWidth, Height: DefaultHeight, MaxUploadBytes: maxUploadBytes, font: f}, nil
}

// Normalize returns PNG bytes of Width x Height for any accepted payload.
func (n *Normalizer) Normalize(sigType domain.SignatureType, payload string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch sigType {
	case domain.SignatureDrawn:
		img, err = n.decodeImage(payload, false)
	case domain.SignatureUploaded:
		img, err = n.decodeImage(payload, true)
	case domain.SignatureTyped:
		return n.renderTyped(payload)
	default:
		return nil, fmt.Errorf("%w: unknown signature type %q", domain.ErrInvalidSignature, sigType)
	}
	if err != nil {
		return nil, err
	}
	if isBlank(img) {
		return nil, domain.ErrEmptySignature
	}
	return encodePNG(n.fit(img))
}

func (n *Normalizer) decodeImage(payload string, uploaded bool) (image.Image, error) {
	raw, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.ErrEmptySignature
	}
	if len(raw) > n.MaxUploadBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidSignature, n.MaxUploadBytes)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported image", domain.ErrInvalidSignature)
	}
	if format != "png" && !(uploaded && format == "jpeg") {
		return nil, fmt.Errorf("%w: format %s not accepted", domain.ErrInvalidSignature, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%w: image dimensions out of range", domain.ErrInvalidSignature)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt image", domain.ErrInvalidSignature)
	}
	return img, nil
}

// decodePayload accepts a data URL or bare standard base64.
func decodePayload(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, fmt.Errorf("%w: malformed data url", domain.ErrInvalidSignature)
		}
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: payload is not base64", domain.ErrInvalidSignature)
		}
	}
	return b, nil
}

// isBlank reports whether no pixel carries visible, non-white ink.
func isBlank(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < 16 {
				continue
			}
			if c.R < 240 || c.G < 240 || c.B < 240 {
				return false
			}
		}
	}
	return true
}

// fit scales src into the canvas preserving aspect ratio, centered on a transparent background.
func (n *Normalizer) fit(src image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, n.Width, n.Height))
	sb := src.Bounds()
	availW, availH := n.Width-2*margin, n.Height-2*margin
	w, h := availW, sb.Dy()*availW/sb.Dx()
	if h > availH {
		h = availH
		w = sb.Dx() * availH / sb.Dy()
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x0 := (n.Width - w) / 2
	y0 := (n.Height - h) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, sb, draw.Over, nil)
	return dst
}

func cleanTypedName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func (n *Normalizer) renderTyped(name string) ([]byte, error) {
	name = cleanTypedName(name)
	if name == "" {
		return nil, domain.ErrEmptySignature
	}
	if utf8.RuneCountInString(name) > maxTypedRunes {
		return nil, fmt.Errorf("%w: typed name too long", domain.ErrInvalidSignature)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, n.Width, n.Height))
	availW := fixed.I(n.Width - 2*margin)
	var (
		face  font.Face
		width fixed.Int26_6
	)
	for size := 72.0; size >= 12; size -= 4 {
		f, err := opentype.NewFace(n.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, fmt.Errorf("signature face: %w", err)
		}
		w := font.MeasureString(f, name)
		if w <= availW || size-4 < 12 {
			face, width = f, w
			break
		}
		_ = f.Close()
	}
	defer face.Close()

	m := face.Metrics()
	baseline := (fixed.I(n.Height) + m.Ascent - m.Descent) / 2
	x := (fixed.I(n.Width) - width) / 2
	if x < fixed.I(margin) {
		x = fixed.I(margin)
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(ink), Face: face, Dot: fixed.Point26_6{X: x, Y: baseline}}
	d.DrawString(name)

	if isBlank(dst) {
		return nil, domain.ErrEmptySignature
	}
	return encodePNG(dst)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeNormalized validates that b is a normalized signature image.
func (n *Normalizer) DecodeNormalized(b []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() != n.Width || img.Bounds().Dy() != n.Height {
		return nil, fmt.Errorf("unexpected signature size %v", img.Bounds().Size())
	}
	return img, nil
}

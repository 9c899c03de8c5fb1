package sigcapture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

func canvas(w, h int, bg color.Color, stroke bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, bg)
		}
	}
	if stroke {
		for x := w / 4; x < 3*w/4; x++ {
			img.Set(x, h/2, color.Black)
			img.Set(x, h/2+1, color.Black)
		}
	}
	return img
}

func pngDataURL(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(0)
	require.NoError(t, err)
	return n
}

func TestDrawnSignatureIsNormalized(t *testing.T) {
	n := newNormalizer(t)
	out, err := n.Normalize(domain.SignatureDrawn, pngDataURL(t, canvas(300, 120, color.White, true)))
	require.NoError(t, err)

	img, err := n.DecodeNormalized(out)
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
	assert.False(t, isBlank(img))
}

func TestBlankCanvasRejected(t *testing.T) {
	n := newNormalizer(t)
	_, err := n.Normalize(domain.SignatureDrawn, pngDataURL(t, canvas(300, 120, color.White, false)))
	assert.True(t, errors.Is(err, domain.ErrEmptySignature))

	_, err = n.Normalize(domain.SignatureDrawn, pngDataURL(t, canvas(300, 120, color.Transparent, false)))
	assert.True(t, errors.Is(err, domain.ErrEmptySignature))

	_, err = n.Normalize(domain.SignatureDrawn, "")
	assert.True(t, errors.Is(err, domain.ErrEmptySignature))
}

func TestTypedSignatureRendersDeterministically(t *testing.T) {
	n := newNormalizer(t)
	a, err := n.Normalize(domain.SignatureTyped, "  Ana   Silva ")
	require.NoError(t, err)
	b, err := n.Normalize(domain.SignatureTyped, "Ana Silva")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	img, err := n.DecodeNormalized(a)
	require.NoError(t, err)
	assert.False(t, isBlank(img))
}

func TestTypedSignatureValidation(t *testing.T) {
	n := newNormalizer(t)
	_, err := n.Normalize(domain.SignatureTyped, " \t\n ")
	assert.True(t, errors.Is(err, domain.ErrEmptySignature))

	long := bytes.Repeat([]byte("a"), maxTypedRunes+1)
	_, err = n.Normalize(domain.SignatureTyped, string(long))
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))

	out, err := n.Normalize(domain.SignatureTyped, "Maximiliano Alexandre de Albuquerque Cavalcanti Figueiredo")
	require.NoError(t, err)
	_, err = n.DecodeNormalized(out)
	require.NoError(t, err)
}

func TestUploadedAcceptsJPEGButDrawnDoesNot(t *testing.T) {
	n := newNormalizer(t)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, canvas(200, 80, color.White, true), &jpeg.Options{Quality: 90}))
	payload := base64.StdEncoding.EncodeToString(buf.Bytes())

	_, err := n.Normalize(domain.SignatureUploaded, payload)
	require.NoError(t, err)

	_, err = n.Normalize(domain.SignatureDrawn, payload)
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
}

func TestUploadedRejectsOversizeAndUnknownFormats(t *testing.T) {
	n, err := New(64)
	require.NoError(t, err)
	_, err = n.Normalize(domain.SignatureUploaded, pngDataURL(t, canvas(300, 120, color.White, true)))
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))

	n = newNormalizer(t)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, canvas(40, 20, color.White, true), nil))
	_, err = n.Normalize(domain.SignatureUploaded, base64.StdEncoding.EncodeToString(buf.Bytes()))
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))

	_, err = n.Normalize(domain.SignatureUploaded, "not base64 at all!")
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))

	_, err = n.Normalize("stamp", "x")
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
}

package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/gif"
	"io"

	"golang.org/x/image/bmp"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgeps"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"
	"gonum.org/v1/plot/vg/vgsvg"
)

// Mime types accepted by the encoders.
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeTIFF = "image/tiff"
	MimeBMP  = "image/bmp"
	MimeGIF  = "image/gif"
	MimeSVG  = "image/svg+xml"
	MimePDF  = "application/pdf"
	MimeEPS  = "application/postscript"
)

// ErrUnsupportedType is wrapped by EncodingError for unknown mime types.
var ErrUnsupportedType = errors.New("unsupported image type")

// ErrBackendUnsupported is wrapped by EncodingError when the drawing uses an
// operation the target format cannot express.
var ErrBackendUnsupported = errors.New("drawing not supported by backend")

// EncodingError reports a failure to encode the canvas as Type.
type EncodingError struct {
	Type string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding canvas as %q: %v", e.Type, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Types returns the supported mime types.
func Types() []string {
	return []string{MimePNG, MimeJPEG, MimeTIFF, MimeBMP, MimeGIF, MimeSVG, MimePDF, MimeEPS}
}

// Supported reports whether mime can be encoded.
func Supported(mime string) bool {
	for _, t := range Types() {
		if t == mime {
			return true
		}
	}
	return false
}

// Encode replays the recorded drawing onto the backend for mime and writes
// the encoded image to w.
func (c *Canvas) Encode(w io.Writer, mime string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &EncodingError{Type: mime, Err: ErrClosed}
	}
	if err := c.encode(w, mime); err != nil {
		var encErr *EncodingError
		if errors.As(err, &encErr) {
			return err
		}
		return &EncodingError{Type: mime, Err: err}
	}
	return nil
}

func (c *Canvas) encode(w io.Writer, mime string) error {
	width, height := vg.Length(c.width), vg.Length(c.height)

	switch mime {
	case MimePNG, MimeJPEG, MimeTIFF, MimeBMP, MimeGIF:
		img := vgimg.NewWith(
			vgimg.UseWH(width, height),
			vgimg.UseDPI(c.dpi()),
			vgimg.UseBackgroundColor(c.background),
		)
		if err := c.replay(img); err != nil {
			return err
		}
		var err error
		switch mime {
		case MimePNG:
			_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(w)
		case MimeJPEG:
			_, err = vgimg.JpegCanvas{Canvas: img}.WriteTo(w)
		case MimeTIFF:
			_, err = vgimg.TiffCanvas{Canvas: img}.WriteTo(w)
		case MimeBMP:
			err = bmp.Encode(w, img.Image())
		case MimeGIF:
			err = gif.Encode(w, img.Image(), nil)
		}
		return err

	case MimeSVG:
		dst := vgsvg.New(width, height)
		if err := c.replay(dst); err != nil {
			return err
		}
		_, err := dst.WriteTo(w)
		return err

	case MimePDF:
		dst := vgpdf.New(width, height)
		if err := c.replay(dst); err != nil {
			return err
		}
		_, err := dst.WriteTo(w)
		return err

	case MimeEPS:
		dst := vgeps.New(width, height)
		if err := c.replay(dst); err != nil {
			return err
		}
		_, err := dst.WriteTo(w)
		return err
	}
	return &EncodingError{Type: mime, Err: ErrUnsupportedType}
}

// replay draws the recording onto dst. Backends panic on operations they
// do not implement (vgeps has no DrawImage), so panics become errors.
func (c *Canvas) replay(dst vg.Canvas) (err error) {
	if c.ctx == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBackendUnsupported, r)
		}
	}()
	if err := c.ctx.ReplayOn(dst); err != nil {
		return fmt.Errorf("replaying drawing: %w", err)
	}
	return nil
}

// ToBlob encodes the canvas as mime.
func (c *Canvas) ToBlob(mime string) (*Blob, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, mime); err != nil {
		return nil, err
	}
	return &Blob{typ: mime, data: buf.Bytes()}, nil
}

// ToDataURL encodes the canvas as mime and returns it as a base64 data URL.
func (c *Canvas) ToDataURL(mime string) (string, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, mime); err != nil {
		return "", err
	}
	return DataURL(mime, buf.Bytes()), nil
}

// DataURL formats data as a base64 data URL of the given mime type.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Blob is an immutable chunk of encoded image data.
type Blob struct {
	typ  string
	data []byte
}

// Type returns the blob's mime type.
func (b *Blob) Type() string { return b.typ }

// Size returns the blob's length in bytes.
func (b *Blob) Size() int { return len(b.data) }

// Reader returns a reader over the blob's bytes.
func (b *Blob) Reader() io.Reader { return bytes.NewReader(b.data) }

package chartnode

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/user/chartjs-node-go/pkg/canvas"
)

// streamChunkSize bounds the bytes delivered by one ImageStream read.
const streamChunkSize = 2048

// GetImageBuffer encodes the drawn chart as mime.
func (n *Node) GetImageBuffer(mime string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, err := n.bufferLocked(mime)
	return buf, opError("image buffer", err)
}

func (n *Node) bufferLocked(mime string) ([]byte, error) {
	if n.state != StateReady || n.canvas == nil {
		return nil, ErrNotReady
	}
	blob, err := n.canvas.ToBlob(mime)
	if err != nil {
		return nil, err
	}
	return blobToBuffer(blob)
}

// blobToBuffer reads a blob into one contiguous buffer.
func blobToBuffer(b *canvas.Blob) ([]byte, error) {
	buf := make([]byte, 0, b.Size())
	w := bytes.NewBuffer(buf)
	if _, err := io.Copy(w, b.Reader()); err != nil {
		return nil, fmt.Errorf("reading %s blob: %w", b.Type(), err)
	}
	return w.Bytes(), nil
}

// ImageStream is a finite stream over an encoded image. Each Read
// delivers at most 2048 bytes; once drained it returns io.EOF and cannot
// be restarted.
type ImageStream struct {
	r      *bytes.Reader
	length int
}

func newImageStream(data []byte) *ImageStream {
	return &ImageStream{r: bytes.NewReader(data), length: len(data)}
}

// Len returns the total length of the image in bytes.
func (s *ImageStream) Len() int { return s.length }

// Read implements io.Reader.
func (s *ImageStream) Read(p []byte) (int, error) {
	if len(p) > streamChunkSize {
		p = p[:streamChunkSize]
	}
	return s.r.Read(p)
}

// WriteTo writes the remaining bytes to w in chunks.
func (s *ImageStream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	chunk := make([]byte, streamChunkSize)
	for {
		k, err := s.Read(chunk)
		if k > 0 {
			m, werr := w.Write(chunk[:k])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// GetImageStream encodes the drawn chart as mime and returns it as a
// stream paired with its length.
func (n *Node) GetImageStream(mime string) (*ImageStream, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, err := n.bufferLocked(mime)
	if err != nil {
		return nil, opError("image stream", err)
	}
	return newImageStream(buf), nil
}

// GetImageDataURL returns the drawn chart as a data: URL.
func (n *Node) GetImageDataURL(mime string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateReady || n.canvas == nil {
		return "", opError("data url", ErrNotReady)
	}
	url, err := n.canvas.ToDataURL(mime)
	if err != nil {
		return "", opError("data url", err)
	}
	return url, nil
}

// WriteImageToFile encodes the drawn chart as mime and writes it to path,
// replacing any existing file. It returns once the file is synced and
// closed. A failed write may leave a partial file behind.
func (n *Node) WriteImageToFile(mime, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, err := n.bufferLocked(mime)
	if err != nil {
		return opError("write file", err)
	}
	if err := writeFile(path, buf); err != nil {
		return opError("write file", err)
	}
	n.logger.Debug("image written", "path", path, "type", mime, "bytes", len(buf))
	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

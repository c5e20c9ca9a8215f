package chatglue

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// maxAttachmentEdge bounds the longest side of an image attached to an
// AgentRequest as file context; larger uploads are downscaled to this
// before being read by the agent back-end.
const maxAttachmentEdge = 1568

// DownscaleImage decodes data and, if either dimension exceeds
// maxAttachmentEdge, resizes it down (preserving aspect ratio) before
// re-encoding in its original format. Images already within bounds are
// returned unchanged.
func DownscaleImage(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxAttachmentEdge && bounds.Dy() <= maxAttachmentEdge {
		return data, nil
	}

	var resized image.Image
	if bounds.Dx() >= bounds.Dy() {
		resized = imaging.Resize(img, maxAttachmentEdge, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, maxAttachmentEdge, imaging.Lanczos)
	}

	encodeFormat := formatFor(format)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, encodeFormat); err != nil {
		return nil, fmt.Errorf("encode downscaled image: %w", err)
	}
	return buf.Bytes(), nil
}

// formatFor maps image.Decode's format name ("jpeg", "png", "gif", ...)
// to the imaging package's Format, defaulting to JPEG for anything it
// doesn't recognize (e.g. webp, which imaging cannot re-encode).
func formatFor(decoded string) imaging.Format {
	switch decoded {
	case "png":
		return imaging.PNG
	case "gif":
		return imaging.GIF
	default:
		return imaging.JPEG
	}
}

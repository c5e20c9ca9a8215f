package chatglue

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDownscaleImageLeavesSmallImagesUntouched(t *testing.T) {
	data := encodePNG(t, 100, 80)
	out, err := DownscaleImage(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("expected an image within bounds to be returned unchanged")
	}
}

func TestDownscaleImageShrinksOversizedImage(t *testing.T) {
	data := encodePNG(t, maxAttachmentEdge+400, 200)
	out, err := DownscaleImage(data)
	if err != nil {
		t.Fatal(err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode downscaled output: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() > maxAttachmentEdge {
		t.Fatalf("expected width <= %d, got %d", maxAttachmentEdge, bounds.Dx())
	}
	if bounds.Dy() >= 200 {
		t.Fatalf("expected height to shrink proportionally from 200, got %d", bounds.Dy())
	}
}

func TestDownscaleImageRejectsGarbageInput(t *testing.T) {
	if _, err := DownscaleImage([]byte("not an image")); err == nil {
		t.Fatal("expected an error for undecodable input")
	}
}

package provider

import (
	"net/http"

	"github.com/nidhogg/clippy/internal/capture"
)

// BatchImages converts a frame batch into image parts, oldest first.
func BatchImages(b capture.Batch) []Image {
	images := make([]Image, 0, b.Len())
	for _, f := range b.Frames {
		if f == nil || len(f.Data) == 0 {
			continue
		}
		images = append(images, FrameImage(f))
	}
	return images
}

// FrameImage wraps a single frame, sniffing its MIME type.
func FrameImage(f *capture.Frame) Image {
	mime := http.DetectContentType(f.Data)
	if mime != "image/png" && mime != "image/jpeg" {
		mime = "image/png"
	}
	return Image{MIMEType: mime, Data: f.Data}
}

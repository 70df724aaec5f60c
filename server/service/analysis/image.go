package analysis

import (
	"bytes"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/hrygo/prefsense/server/ai"
)

// MaxImageDimension bounds the longer side of an image sent to the model.
const MaxImageDimension = 2048

var imageFormats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/jpg":  imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/bmp":  imaging.BMP,
	"image/tiff": imaging.TIFF,
}

// prepareImage builds the model attachment for an image document. Oversized
// images are scaled down to fit maxDim and re-encoded in their own format.
// Images that cannot be decoded are attached unchanged.
func prepareImage(doc *Document, contentType string, maxDim int) *ai.File {
	file := &ai.File{Name: doc.Name, MimeType: contentType, Data: doc.Data}

	format, ok := imageFormats[contentType]
	if !ok || maxDim <= 0 {
		return file
	}
	img, err := imaging.Decode(bytes.NewReader(doc.Data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("image not decodable, attaching as is",
			slog.String("mime_type", contentType),
			slog.String("error", err.Error()))
		return file
	}
	if !exceeds(img.Bounds(), maxDim) {
		return file
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format); err != nil {
		slog.Warn("failed to re-encode image, attaching original", slog.String("error", err.Error()))
		return file
	}
	file.Data = buf.Bytes()
	return file
}

func exceeds(bounds image.Rectangle, maxDim int) bool {
	return bounds.Dx() > maxDim || bounds.Dy() > maxDim
}

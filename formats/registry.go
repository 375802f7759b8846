package formats

import (
	"context"
	"fmt"
	"strings"

	"fileconverter/models"
)

// ConvertFunc is one black-box converter capability: it reads the
// source file, writes an output in the target format, and returns the
// output path. Synchronous; may take minutes for video work.
type ConvertFunc func(ctx context.Context, sourcePath, targetFormat string) (string, error)

// Capability identifies a converter routine. Adding a new (source,
// target) pair is a data change in Routes, never a control-flow change.
type Capability string

const (
	CapImage      Capability = "image"
	CapImageToPDF Capability = "image_to_pdf"
	CapDocument   Capability = "document"
	CapVideo      Capability = "video"
	CapVideoToGIF Capability = "video_to_gif"
)

type route struct {
	Source string
	Target string
}

// Routes is the static conversion table. Populated once; read-only
// thereafter. Keys are lowercase format tags.
var Routes = map[route]Capability{
	// Image conversions
	{"jpg", "png"}:   CapImage,
	{"jpg", "gif"}:   CapImage,
	{"jpg", "bmp"}:   CapImage,
	{"jpg", "webp"}:  CapImage,
	{"jpg", "tiff"}:  CapImage,
	{"jpg", "pdf"}:   CapImageToPDF,
	{"jpeg", "png"}:  CapImage,
	{"jpeg", "jpg"}:  CapImage,
	{"jpeg", "pdf"}:  CapImageToPDF,
	{"png", "jpg"}:   CapImage,
	{"png", "jpeg"}:  CapImage,
	{"png", "gif"}:   CapImage,
	{"png", "bmp"}:   CapImage,
	{"png", "webp"}:  CapImage,
	{"png", "pdf"}:   CapImageToPDF,
	{"gif", "jpg"}:   CapImage,
	{"gif", "png"}:   CapImage,
	{"gif", "pdf"}:   CapImageToPDF,
	{"bmp", "jpg"}:   CapImage,
	{"bmp", "png"}:   CapImage,
	{"bmp", "pdf"}:   CapImageToPDF,
	{"webp", "jpg"}:  CapImage,
	{"webp", "png"}:  CapImage,
	{"webp", "pdf"}:  CapImageToPDF,
	{"tiff", "jpg"}:  CapImage,
	{"tiff", "png"}:  CapImage,
	{"tiff", "pdf"}:  CapImageToPDF,

	// Document conversions
	{"pdf", "docx"}: CapDocument,
	{"pdf", "txt"}:  CapDocument,
	{"pdf", "jpg"}:  CapDocument,
	{"pdf", "png"}:  CapDocument,
	{"docx", "pdf"}: CapDocument,
	{"docx", "txt"}: CapDocument,
	{"txt", "pdf"}:  CapDocument,

	// Video conversions
	{"mp4", "gif"}: CapVideoToGIF,
	{"mp4", "avi"}: CapVideo,
	{"avi", "mp4"}: CapVideo,
	{"mov", "mp4"}: CapVideo,
	{"mkv", "mp4"}: CapVideo,
}

// Resolve returns the converter capability for a format pair. Formats
// are normalized to lowercase before lookup. An unsupported pair yields
// models.ErrUnsupportedConversion before any I/O happens.
func Resolve(sourceFormat, targetFormat string) (Capability, error) {
	key := route{strings.ToLower(sourceFormat), strings.ToLower(targetFormat)}
	c, ok := Routes[key]
	if !ok {
		return "", fmt.Errorf("%w: %s to %s", models.ErrUnsupportedConversion, key.Source, key.Target)
	}
	return c, nil
}

// Supported format tags per conversion category.
var (
	ImageFormats    = []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff"}
	DocumentFormats = []string{"pdf", "docx", "txt"}
	VideoFormats    = []string{"mp4", "avi", "mov", "mkv", "flv", "wmv"}
)

// CategoryFor maps a source format tag to its conversion category.
func CategoryFor(format string) (models.ConversionType, bool) {
	f := strings.ToLower(format)
	for _, v := range ImageFormats {
		if f == v {
			return models.TypeImage, true
		}
	}
	for _, v := range DocumentFormats {
		if f == v {
			return models.TypeDocument, true
		}
	}
	for _, v := range VideoFormats {
		if f == v {
			return models.TypeVideo, true
		}
	}
	return "", false
}

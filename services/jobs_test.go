package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fileconverter/models"
)

func TestSubmit_ValidationBeforeAnyRecord(t *testing.T) {
	t.Parallel()

	// Validation failures happen before the store, artifact storage or
	// queue are touched, so nil collaborators prove the ordering.
	svc := NewConversionService(nil, nil, nil, 100*1024*1024)

	cases := []struct {
		name     string
		filename string
		size     int64
		target   string
	}{
		{"empty upload", "photo.jpg", 0, "png"},
		{"oversized upload", "photo.jpg", 200 * 1024 * 1024, "png"},
		{"unrecognized format", "report.exe", 1024, "pdf"},
		{"no extension", "README", 1024, "pdf"},
		{"missing target", "photo.jpg", 1024, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), strings.NewReader("x"), c.filename, c.size, c.target)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestSubmit_RejectsUnconvertiblePairsUpFront(t *testing.T) {
	t.Parallel()

	svc := NewConversionService(nil, nil, nil, 100*1024*1024)

	// A recognized source with no route to the target fails at submit
	// time, before any artifact or record exists.
	cases := []struct {
		filename string
		target   string
	}{
		{"photo.jpg", "mp4"},
		{"movie.mp4", "png"},
		{"report.pdf", "gif"},
	}
	for _, c := range cases {
		_, err := svc.Submit(context.Background(), strings.NewReader("x"), c.filename, 1024, c.target)
		if !errors.Is(err, models.ErrUnsupportedConversion) {
			t.Errorf("Submit(%s -> %s) = %v, want ErrUnsupportedConversion", c.filename, c.target, err)
		}
	}
}

func TestDownloadFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		original string
		target   string
		want     string
	}{
		{"photo.jpg", "png", "photo_converted.png"},
		{"My Report.docx", "PDF", "My Report_converted.pdf"},
		{"archive.tar.gz", "pdf", "archive.tar_converted.pdf"},
	}
	for _, c := range cases {
		if got := DownloadFilename(c.original, c.target); got != c.want {
			t.Errorf("DownloadFilename(%q, %q) = %q, want %q", c.original, c.target, got, c.want)
		}
	}
}

func TestSourceAndConvertedKeys(t *testing.T) {
	t.Parallel()

	ts := mustTime(t, "2026-09-01T10:00:00Z")
	if got := SourceKey("abc", "JPG", ts); got != "uploads/2026/09/01/abc.jpg" {
		t.Errorf("SourceKey = %s", got)
	}
	if got := ConvertedKey("abc", "png", ts); got != "converted/2026/09/01/abc.png" {
		t.Errorf("ConvertedKey = %s", got)
	}
}

package services

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func readTargetFormatField(t *testing.T, r *http.Request) string {
	t.Helper()

	if r.URL.Path != "/forms/documents/convert" {
		t.Fatalf("unexpected path: %s", r.URL.Path)
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("expected multipart/form-data, got %q (err=%v)", mediaType, err)
	}

	reader := multipart.NewReader(r.Body, params["boundary"])
	defer func() { _ = r.Body.Close() }()

	var target string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read multipart part: %v", err)
		}

		if part.FormName() == "targetFormat" {
			b, _ := io.ReadAll(part)
			target = string(b)
		} else {
			_, _ = io.Copy(io.Discard, part)
		}
		_ = part.Close()
	}
	return target
}

func TestDocServerService_Convert(t *testing.T) {
	t.Parallel()

	svc := NewDocServerService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if got := readTargetFormatField(t, r); got != "pdf" {
			t.Fatalf("targetFormat = %q, want pdf", got)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("%PDF-1.4\n%EOF\n"))),
			Header:     make(http.Header),
		}, nil
	})

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.docx")
	if err := os.WriteFile(inputPath, []byte("dummy"), 0644); err != nil {
		t.Fatalf("failed to write temp input: %v", err)
	}

	outputPath, err := svc.Convert(context.Background(), inputPath, "PDF")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if want := filepath.Join(tmpDir, "input_converted.pdf"); outputPath != want {
		t.Fatalf("output path = %s, want %s", outputPath, want)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty output")
	}
}

func TestDocServerService_ConvertNonOKStatus(t *testing.T) {
	t.Parallel()

	svc := NewDocServerService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		io.Copy(io.Discard, r.Body)
		r.Body.Close()
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       io.NopCloser(strings.NewReader("malformed document")),
			Header:     make(http.Header),
		}, nil
	})

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.docx")
	if err := os.WriteFile(inputPath, []byte("dummy"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Convert(context.Background(), inputPath, "pdf")
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
	if !strings.Contains(err.Error(), "malformed document") {
		t.Errorf("service response body lost from error: %v", err)
	}
}

func TestTempOutputPath(t *testing.T) {
	t.Parallel()

	got := tempOutputPath("/tmp/conversions/abc.jpg", "PNG")
	if got != "/tmp/conversions/abc_converted.png" {
		t.Fatalf("tempOutputPath = %s", got)
	}
}

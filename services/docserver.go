package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DocServerService converts documents (and images to PDF) through an
// external HTTP conversion service. The service accepts a multipart
// upload plus a targetFormat field and streams back the converted
// bytes.
type DocServerService struct {
	baseURL string
	client  *http.Client
}

func NewDocServerService(baseURL string) *DocServerService {
	return &DocServerService{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

// Convert uploads the source file and writes the converted result next
// to it as <base>_converted.<targetFormat>.
func (d *DocServerService) Convert(ctx context.Context, sourcePath string, targetFormat string) (string, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", filepath.Base(sourcePath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	writer.WriteField("targetFormat", strings.ToLower(targetFormat))

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/forms/documents/convert", d.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("document service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("document service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	outputPath := tempOutputPath(sourcePath, targetFormat)
	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save converted file: %w", err)
	}

	return outputPath, nil
}

// tempOutputPath names intermediate converter outputs:
// /tmp/x/input.jpg + pdf -> /tmp/x/input_converted.pdf
func tempOutputPath(sourcePath, targetFormat string) string {
	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	return fmt.Sprintf("%s_converted.%s", base, strings.ToLower(targetFormat))
}

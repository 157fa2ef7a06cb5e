package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// DoJSON sends a JSON request payload and returns the response body. Non-2xx
// statuses come back as *APIError with status, headers, and body retained.
func DoJSON(ctx context.Context, client *http.Client, req *http.Request, payload any) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	}
	return body, nil
}

// UploadFile posts one local file as a multipart form to url and returns the
// response body. extraFields are added as plain form values.
func UploadFile(ctx context.Context, client *http.Client, url string, header http.Header, fileField, path string, extraFields map[string]string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range extraFields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := mw.CreateFormFile(fileField, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	}
	return body, nil
}

// ParseJSONMap decodes body into a generic mapping for diagnostics and
// citation walks. Malformed JSON yields an empty map, never an error:
// extraction must not fail on a provider's loose response shape.
func ParseJSONMap(body []byte) map[string]any {
	out := map[string]any{}
	if len(body) == 0 {
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// MergeOptions applies caller overrides onto payload last. While search is
// required, tool wiring stays protected from being clobbered.
func MergeOptions(payload map[string]any, options map[string]any, protectTools bool) {
	for key, value := range options {
		if protectTools && (key == "tools" || key == "tool_choice") {
			continue
		}
		payload[key] = value
	}
}

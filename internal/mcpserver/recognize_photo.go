package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/pantry/internal/assistant"
)

const maxPhotoSize = 10 << 20 // 10 MB

var photoTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

func (s *Server) recognizePhoto(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.assistant == nil {
		return errorResult(assistant.ErrNotConfigured), nil
	}

	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxPhotoSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxPhotoSize)), nil
	}

	// Trust the bytes, not the declared type.
	mediaType := strings.Split(http.DetectContentType(data), ";")[0]
	if !photoTypes[mediaType] {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported image type: %s", mediaType)), nil
	}

	items, err := s.assistant.Recognize(ctx, data, mediaType)
	if err != nil {
		return errorResult(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no ingredients recognised"), nil
	}
	added, err := s.store.AddRecognized(items)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(added), nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}
	meta, encoded := rest[:commaIdx], rest[commaIdx+1:]
	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// fetchHTTP downloads an image from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

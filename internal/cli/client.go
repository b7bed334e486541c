package cli

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/http2"

	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/tools"
	"github.com/animus-coder/codesmith/internal/version"
)

// Client talks to the daemon's session API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a client for baseURL using plain HTTP/1.1.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

// NewSession starts a session and returns its id.
func (c *Client) NewSession(ctx context.Context) (string, error) {
	var resp rpc.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", "", nil, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// EndSession ends a session.
func (c *Client) EndSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+id, "", nil, nil)
}

// ListTools returns the session registry.
func (c *Client) ListTools(ctx context.Context, id string) ([]tools.ToolInfo, error) {
	var resp rpc.ToolsResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id+"/tools", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// AddTool uploads documents and registers them as a named tool.
func (c *Client) AddTool(ctx context.Context, id, name, description string, paths []string) (tools.ToolInfo, error) {
	body, contentType, err := multipartFiles(map[string]string{"name": name, "description": description}, paths)
	if err != nil {
		return tools.ToolInfo{}, err
	}
	var info tools.ToolInfo
	if err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/tools", contentType, body, &info); err != nil {
		return tools.ToolInfo{}, err
	}
	return info, nil
}

// CreateAgent binds the selected tools into the session agent.
func (c *Client) CreateAgent(ctx context.Context, id string, req rpc.CreateAgentRequest) (rpc.CreateAgentResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return rpc.CreateAgentResponse{}, err
	}
	var resp rpc.CreateAgentResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/agent", "application/json", bytes.NewReader(data), &resp); err != nil {
		return rpc.CreateAgentResponse{}, err
	}
	return resp, nil
}

// UploadCode stages code files for the code reader.
func (c *Client) UploadCode(ctx context.Context, id string, paths []string) ([]string, error) {
	body, contentType, err := multipartFiles(nil, paths)
	if err != nil {
		return nil, err
	}
	var resp rpc.StageFilesResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/files", contentType, body, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx daemon reply.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

func decodeError(resp *http.Response) error {
	var body rpc.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

func multipartFiles(fields map[string]string, paths []string) (io.Reader, string, error) {
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("at least one file is required")
	}
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fw, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client is a thin HTTP client for a running counsel server. A bearer token
// is attached from COUNSEL_TOKEN when set.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func newClient() *Client {
	return &Client{
		BaseURL: serverURL,
		Token:   os.Getenv("COUNSEL_TOKEN"),
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) do(method, path string, data any) ([]byte, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

func (c *Client) get(path string) ([]byte, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *Client) post(path string, data any) ([]byte, error) {
	return c.do(http.MethodPost, path, data)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printRaw re-indents a JSON response for the terminal, or prints it as-is
// when it is not JSON.
func printRaw(body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"chessmatch/internal/client/display"
	"chessmatch/internal/server/core"
)

// pollTimeout outlasts the server's long-poll wait
const pollTimeout = 35 * time.Second

// HealthResponse mirrors GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Time     int64  `json:"time"`
	Sessions int    `json:"sessions"`
	Storage  string `json:"storage,omitempty"`
}

// Error is a failed request with the server's error body
type Error struct {
	Status int
	core.ErrorResponse
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.ErrorResponse.Error, e.Code, e.Status)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	Verbose    bool
	Out        io.Writer
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: pollTimeout,
		},
		Out: os.Stdout,
	}
}

func (c *Client) SetVerbose(v bool) {
	c.Verbose = v
}

// SetBaseURL updates the API base URL for the client
func (c *Client) SetBaseURL(url string) {
	c.BaseURL = strings.TrimRight(url, "/")
}

// SetToken sets the participant token sent as a Bearer header
func (c *Client) SetToken(token string) {
	c.AuthToken = token
}

func (c *Client) doRequest(method, path string, body any, result any) error {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonData)
		bodyStr = string(jsonData)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	if c.Verbose {
		fmt.Fprintf(c.Out, "\n%s[API] %s %s%s\n", display.Blue, method, path, display.Reset)
		if bodyStr != "" {
			fmt.Fprintf(c.Out, "%s%s%s\n", display.Blue, bodyStr, display.Reset)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if c.Verbose {
		statusColor := display.Green
		if resp.StatusCode >= 400 {
			statusColor = display.Red
		}
		fmt.Fprintf(c.Out, "%s[%d %s]%s\n", statusColor, resp.StatusCode, http.StatusText(resp.StatusCode), display.Reset)
		if len(respBody) > 0 {
			var pretty any
			if err := json.Unmarshal(respBody, &pretty); err == nil {
				fmt.Fprintf(c.Out, "%sResponse Body:%s\n", display.Cyan, display.Reset)
				display.PrettyPrintJSON(c.Out, pretty)
			} else {
				fmt.Fprintf(c.Out, "%sResponse:%s\n%s\n", display.Cyan, display.Reset, string(respBody))
			}
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, &apiErr.ErrorResponse); err != nil {
			apiErr.ErrorResponse.Error = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// API Methods

func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(http.MethodGet, "/health", nil, &resp)
	return &resp, err
}

func (c *Client) CreateSession() (*core.SessionState, error) {
	var resp core.SessionState
	err := c.doRequest(http.MethodPost, "/api/v1/sessions", nil, &resp)
	return &resp, err
}

// Join seats the caller. With a token already set for the session the
// server re-attaches the same seat.
func (c *Client) Join(sessionID, name string) (*core.JoinResponse, error) {
	var resp core.JoinResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/join", &core.JoinRequest{Name: name}, &resp)
	return &resp, err
}

func (c *Client) GetSession(sessionID string) (*core.SessionState, error) {
	var resp core.SessionState
	err := c.doRequest(http.MethodGet, "/api/v1/sessions/"+sessionID, nil, &resp)
	return &resp, err
}

// WaitSession long-polls until the session version moves past version or the
// server's wait times out
func (c *Client) WaitSession(sessionID string, version uint64) (*core.SessionState, error) {
	var resp core.SessionState
	path := fmt.Sprintf("/api/v1/sessions/%s?wait=true&version=%d", sessionID, version)
	err := c.doRequest(http.MethodGet, path, nil, &resp)
	return &resp, err
}

func (c *Client) GetBoard(sessionID string) (*core.BoardResponse, error) {
	var resp core.BoardResponse
	err := c.doRequest(http.MethodGet, "/api/v1/sessions/"+sessionID+"/board", nil, &resp)
	return &resp, err
}

func (c *Client) Move(sessionID, move string) (*core.MoveResponse, error) {
	var resp core.MoveResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/moves", &core.MoveRequest{Move: move}, &resp)
	return &resp, err
}

func (c *Client) Resign(sessionID string) (*core.SessionState, error) {
	return c.action(sessionID, "/resign")
}

func (c *Client) OfferDraw(sessionID string) (*core.SessionState, error) {
	return c.action(sessionID, "/draw/offer")
}

func (c *Client) AcceptDraw(sessionID string) (*core.SessionState, error) {
	return c.action(sessionID, "/draw/accept")
}

func (c *Client) DeclineDraw(sessionID string) (*core.SessionState, error) {
	return c.action(sessionID, "/draw/decline")
}

func (c *Client) Disconnect(sessionID string) (*core.DisconnectResponse, error) {
	var resp core.DisconnectResponse
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/disconnect", nil, &resp)
	return &resp, err
}

func (c *Client) action(sessionID, suffix string) (*core.SessionState, error) {
	var resp core.SessionState
	err := c.doRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+suffix, nil, &resp)
	return &resp, err
}

// RawRequest performs a raw HTTP request and prints the response
func (c *Client) RawRequest(method, path string, body string) error {
	var bodyData any
	if body != "" {
		if err := json.Unmarshal([]byte(body), &bodyData); err != nil {
			bodyData = body
		}
	}

	var result any
	if err := c.doRequest(method, path, bodyData, &result); err != nil {
		return err
	}
	if !c.Verbose && result != nil {
		display.PrettyPrintJSON(c.Out, result)
	}
	return nil
}

// Package mtx contains a client for the control API of the
// external streaming server.
package mtx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrServerUnreachable is returned when the streaming server
// can't be reached at all.
var ErrServerUnreachable = errors.New("streaming server is unreachable")

// StatusError is returned when the streaming server replies
// with a non-2xx status code.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// PathConf is the configuration of a path on the streaming server.
type PathConf struct {
	Source           string `json:"source,omitempty"`
	RunOnInit        string `json:"runOnInit,omitempty"`
	RunOnInitRestart bool   `json:"runOnInitRestart,omitempty"`
	Record           bool   `json:"record"`
	RecordPath       string `json:"recordPath,omitempty"`
	RecordFormat     string `json:"recordFormat,omitempty"`
}

// PathInfo is the runtime state of a path on the streaming server.
type PathInfo struct {
	Name      string     `json:"name"`
	ConfName  string     `json:"confName"`
	Ready     bool       `json:"ready"`
	ReadyTime *time.Time `json:"readyTime"`
	Tracks    []string   `json:"tracks"`
}

// PathList is a list of runtime paths.
type PathList struct {
	ItemCount int        `json:"itemCount"`
	PageCount int        `json:"pageCount"`
	Items     []PathInfo `json:"items"`
}

// Client is a client of the streaming server control API.
type Client struct {
	BaseURL string
	Timeout time.Duration

	httpClient *http.Client
}

// Initialize initializes a Client.
func (c *Client) Initialize() {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	c.httpClient = &http.Client{
		Timeout: c.Timeout,
	}
}

// CheckHealth verifies that the control API is responding.
func (c *Client) CheckHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v3/config/global/get", nil, nil)
}

// PathsList returns the runtime paths of the server.
func (c *Client) PathsList(ctx context.Context) (*PathList, error) {
	var ret PathList
	err := c.do(ctx, http.MethodGet, "/v3/paths/list", nil, &ret)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// PathsGet returns the runtime state of a path.
func (c *Client) PathsGet(ctx context.Context, name string) (*PathInfo, error) {
	var ret PathInfo
	err := c.do(ctx, http.MethodGet, "/v3/paths/get/"+url.PathEscape(name), nil, &ret)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// ConfigPathsGet returns the configuration of a path.
func (c *Client) ConfigPathsGet(ctx context.Context, name string) (*PathConf, error) {
	var ret PathConf
	err := c.do(ctx, http.MethodGet, "/v3/config/paths/get/"+url.PathEscape(name), nil, &ret)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// ConfigPathsAdd adds a path configuration.
func (c *Client) ConfigPathsAdd(ctx context.Context, name string, conf *PathConf) error {
	return c.do(ctx, http.MethodPost, "/v3/config/paths/add/"+url.PathEscape(name), conf, nil)
}

// ConfigPathsPatch patches a path configuration.
func (c *Client) ConfigPathsPatch(ctx context.Context, name string, conf *PathConf) error {
	return c.do(ctx, http.MethodPatch, "/v3/config/paths/patch/"+url.PathEscape(name), conf, nil)
}

// ConfigPathsDelete deletes a path configuration.
func (c *Client) ConfigPathsDelete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v3/config/paths/delete/"+url.PathEscape(name), nil, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, reqBody interface{}, resBody interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		byts, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(byts)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrServerUnreachable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		byts, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

		var apiErr struct {
			Error string `json:"error"`
		}
		msg := ""
		if json.Unmarshal(byts, &apiErr) == nil {
			msg = apiErr.Error
		}

		return StatusError{Code: res.StatusCode, Message: msg}
	}

	if resBody != nil {
		err = json.NewDecoder(res.Body).Decode(resBody)
		if err != nil {
			return err
		}
	}

	return nil
}

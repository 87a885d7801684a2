package gdb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// RESTConnection talks to the graph backend over its REST endpoints.
// It implements Connection.
type RESTConnection struct {
	host      string
	graphName string
	username  string
	password  string
	apiToken  string

	client *http.Client
}

// RESTConnectionParams contains configuration for creating a RESTConnection.
// When APIToken is empty, requests fall back to basic auth with
// Username/Password.
type RESTConnectionParams struct {
	Host      string
	GraphName string
	Username  string
	Password  string
	APIToken  string
	Timeout   time.Duration
}

// NewRESTConnection creates a connection to the graph backend at the given
// host, bound to one graph.
func NewRESTConnection(params RESTConnectionParams) *RESTConnection {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RESTConnection{
		host:      strings.TrimRight(params.Host, "/"),
		graphName: params.GraphName,
		username:  params.Username,
		password:  params.Password,
		apiToken:  params.APIToken,
		client:    &http.Client{Timeout: timeout},
	}
}

// GraphName returns the graph this connection is bound to.
func (c *RESTConnection) GraphName() string {
	return c.graphName
}

func (c *RESTConnection) authHeader() string {
	if c.apiToken == "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
		return "Basic " + creds
	}
	return "Bearer " + c.apiToken
}

func (c *RESTConnection) do(ctx context.Context, method, path string, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authHeader())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(data), 512))
	}
	return data, nil
}

// restppEnvelope is the response wrapper of the query and upsert endpoints.
type restppEnvelope struct {
	Error   bool              `json:"error"`
	Message string            `json:"message"`
	Results []map[string]any  `json:"results"`
	Version map[string]string `json:"version"`
}

func (c *RESTConnection) doEnvelope(ctx context.Context, method, path string, body io.Reader) (*restppEnvelope, error) {
	data, err := c.do(ctx, method, path, "application/json", body)
	if err != nil {
		return nil, err
	}
	var env restppEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s %s: malformed response: %w", method, path, err)
	}
	if env.Error {
		return nil, fmt.Errorf("%s %s: %s", method, path, env.Message)
	}
	return &env, nil
}

// GetVer returns the backend version string.
func (c *RESTConnection) GetVer(ctx context.Context) (string, error) {
	env, err := c.doEnvelope(ctx, http.MethodGet, "/restpp/version", nil)
	if err != nil {
		return "", err
	}
	if v, ok := env.Version["api"]; ok && v != "" {
		return v, nil
	}
	return env.Message, nil
}

// RunInstalledQuery invokes a named stored procedure with JSON parameters.
func (c *RESTConnection) RunInstalledQuery(ctx context.Context, name string, params map[string]any) ([]map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/restpp/query/%s/%s", url.PathEscape(c.graphName), url.PathEscape(name))
	env, err := c.doEnvelope(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return env.Results, nil
}

// UpsertData applies a batched vertex/edge write.
func (c *RESTConnection) UpsertData(ctx context.Context, payload *UpsertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/restpp/graph/%s", url.PathEscape(c.graphName))
	_, err = c.doEnvelope(ctx, http.MethodPost, path, bytes.NewReader(body))
	return err
}

// GSQL executes DDL or an interpreted query and returns the raw response.
func (c *RESTConnection) GSQL(ctx context.Context, text string) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/gsqlserver/gsql/file", "text/plain", strings.NewReader(text))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// schemaResponse is the shape of the schema introspection endpoint.
type schemaResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Results struct {
		VertexTypes []schemaType `json:"VertexTypes"`
		EdgeTypes   []schemaType `json:"EdgeTypes"`
	} `json:"results"`
}

type schemaType struct {
	Name       string `json:"Name"`
	Attributes []struct {
		AttributeName string `json:"AttributeName"`
	} `json:"Attributes"`
}

func (c *RESTConnection) schema(ctx context.Context) (*schemaResponse, error) {
	path := fmt.Sprintf("/gsqlserver/gsql/schema?graph=%s", url.QueryEscape(c.graphName))
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var res schemaResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("malformed schema response: %w", err)
	}
	if res.Error {
		return nil, fmt.Errorf("schema introspection failed: %s", res.Message)
	}
	return &res, nil
}

// GetVertexTypes returns the names of all vertex types in the graph schema.
func (c *RESTConnection) GetVertexTypes(ctx context.Context) ([]string, error) {
	res, err := c.schema(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Results.VertexTypes))
	for _, t := range res.Results.VertexTypes {
		names = append(names, t.Name)
	}
	return names, nil
}

// GetEdgeTypes returns the names of all edge types in the graph schema.
func (c *RESTConnection) GetEdgeTypes(ctx context.Context) ([]string, error) {
	res, err := c.schema(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Results.EdgeTypes))
	for _, t := range res.Results.EdgeTypes {
		names = append(names, t.Name)
	}
	return names, nil
}

// GetVertexAttrs returns the attribute names of one vertex type.
func (c *RESTConnection) GetVertexAttrs(ctx context.Context, vertexType string) ([]string, error) {
	res, err := c.schema(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range res.Results.VertexTypes {
		if t.Name != vertexType {
			continue
		}
		attrs := make([]string, 0, len(t.Attributes))
		for _, a := range t.Attributes {
			attrs = append(attrs, a.AttributeName)
		}
		return attrs, nil
	}
	return nil, fmt.Errorf("unknown vertex type %q", vertexType)
}

// GetEdgeAttrs returns the attribute names of one edge type.
func (c *RESTConnection) GetEdgeAttrs(ctx context.Context, edgeType string) ([]string, error) {
	res, err := c.schema(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range res.Results.EdgeTypes {
		if t.Name != edgeType {
			continue
		}
		attrs := make([]string, 0, len(t.Attributes))
		for _, a := range t.Attributes {
			attrs = append(attrs, a.AttributeName)
		}
		return attrs, nil
	}
	return nil, fmt.Errorf("unknown edge type %q", edgeType)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

/*
Package client provides easy and fast in-process access to the REST api

Instead of marshalling HTTP, the client talks directly to the mux router.
It understands the response envelope and unwraps the data object, which
makes it the tool of choice for unit tests and for handlers that need to
call other routes to fulfill their task.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/access"
	"github.com/mediora-tech/mediora/core/envelope"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	principal  *access.Principal
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// dispatcher, through the mux router.
//
// WithPrincipal() adds a principal to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to a running service.
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	c.defaultHeaders[key] = value
	return c
}

// WithToken returns a new client with a bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithPrincipal returns a new client with a specific principal
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithPrincipal(principal access.Principal) Client {
	c.principal = &principal
	return c
}

// WithRole returns a new client with a fresh principal carrying the role
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithRole(role core.Role) Client {
	return c.WithPrincipal(access.Principal{ID: uuid.New(), Role: role})
}

// WithAdminPrincipal returns a new client with admin permissions
func (c Client) WithAdminPrincipal() Client {
	return c.WithRole(core.RoleAdmin)
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.principal != nil {
		ctx = access.ContextWithPrincipal(ctx, *c.principal)
	}
	return ctx
}

// Path assembles a route path with optional query parameters.
func Path(route string, parameters map[string]string) string {
	path := "/" + route
	if len(parameters) == 0 {
		return path
	}
	values := url.Values{}
	for key, value := range parameters {
		values.Set(key, value)
	}
	return path + "?" + values.Encode()
}

// exchange performs the request, either through the router or over the
// wire, and returns the status with the raw response body.
func (c Client) exchange(method, path string, headers map[string]string, body []byte) (int, []byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}
	r, _ := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, rec.Body.Bytes(), res.Header, nil
	}

	if c.token != "" {
		r.Header.Add("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, resBody, res.Header, nil
}

type responseEnvelope struct {
	Data       json.RawMessage      `json:"data"`
	Pagination *envelope.Pagination `json:"pagination"`
	Err        *envelope.Error      `json:"error"`
}

func unwrap(resBody []byte, result interface{}) (*responseEnvelope, error) {
	var res responseEnvelope
	if err := json.Unmarshal(resBody, &res); err != nil {
		return nil, err
	}
	if result != nil && res.Data != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = res.Data
		} else if err := json.Unmarshal(res.Data, result); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

func statusError(method, path string, want, got int, resBody []byte) error {
	return fmt.Errorf("%s %s returned wrong status code: got %v want %v. Body: %s",
		method, path, got, want, strings.TrimSpace(string(resBody)))
}

// Get reads a resource from path and unwraps the data object into result.
//
// Expects http.StatusOK as response, otherwise it will flag an error.
// Returns the actual http status code.
//
// result can be a struct, a map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) Get(path string, result interface{}) (int, error) {
	status, resBody, _, err := c.exchange(http.MethodGet, path, nil, nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, statusError("GET", path, http.StatusOK, status, resBody)
	}
	_, err = unwrap(resBody, result)
	return status, err
}

// List reads a collection page from path, unwraps the data array into
// result and returns the pagination metadata.
//
// Expects http.StatusOK as response, otherwise it will flag an error.
// Returns the actual http status code.
func (c Client) List(path string, result interface{}) (envelope.Pagination, int, error) {
	var pagination envelope.Pagination
	status, resBody, _, err := c.exchange(http.MethodGet, path, nil, nil)
	if err != nil {
		return pagination, status, err
	}
	if status != http.StatusOK {
		return pagination, status, statusError("GET", path, http.StatusOK, status, resBody)
	}
	res, err := unwrap(resBody, result)
	if err != nil {
		return pagination, status, err
	}
	if res.Pagination != nil {
		pagination = *res.Pagination
	}
	return pagination, status, nil
}

// Post creates a resource at path.
//
// Expects http.StatusCreated as response, otherwise it will flag an
// error. Returns the actual http status code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	j, ok := body.([]byte)
	if !ok {
		var err error
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
		}
	}
	status, resBody, _, err := c.exchange(http.MethodPost, path, nil, j)
	if err != nil {
		return status, err
	}
	if status != http.StatusCreated {
		return status, statusError("POST", path, http.StatusCreated, status, resBody)
	}
	_, err = unwrap(resBody, result)
	return status, err
}

// Put updates the resource at path.
//
// Expects http.StatusOK as response, otherwise it will flag an error.
// Returns the actual http status code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) Put(path string, body interface{}, result interface{}) (int, error) {
	j, ok := body.([]byte)
	if !ok {
		var err error
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("PUT to %s: %w", path, err)
		}
	}
	status, resBody, _, err := c.exchange(http.MethodPut, path, nil, j)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, statusError("PUT", path, http.StatusOK, status, resBody)
	}
	_, err = unwrap(resBody, result)
	return status, err
}

// Delete deletes the resource at path.
//
// Expects http.StatusOK as response, otherwise it will flag an error.
// Returns the actual http status code.
func (c Client) Delete(path string) (int, error) {
	status, resBody, _, err := c.exchange(http.MethodDelete, path, nil, nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, statusError("DELETE", path, http.StatusOK, status, resBody)
	}
	return status, nil
}

// Error reads a path expecting a failure and returns the status with the
// decoded error from the envelope. It flags an error on a success status.
func (c Client) Error(method, path string, body interface{}) (int, *envelope.Error, error) {
	var j []byte
	if body != nil {
		var ok bool
		if j, ok = body.([]byte); !ok {
			var err error
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, nil, err
			}
		}
	}
	status, resBody, _, err := c.exchange(method, path, nil, j)
	if err != nil {
		return status, nil, err
	}
	if status < http.StatusBadRequest {
		return status, nil, fmt.Errorf("%s %s expected an error status, got %v", method, path, status)
	}
	res, err := unwrap(resBody, nil)
	if err != nil {
		return status, nil, err
	}
	return status, res.Err, nil
}

// RawRequest performs the request verbatim and returns status, body and
// headers. Tests use it for content negotiation and raw envelope checks.
func (c Client) RawRequest(method, path string, headers map[string]string, body []byte) (int, []byte, http.Header, error) {
	return c.exchange(method, path, headers, body)
}

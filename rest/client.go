// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the status API of a running fleetd.
type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of server
	auth   bool
	client *http.Client
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(parts ...string) string {
	u := c.base + ApiPrefix
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) get(ctx context.Context, u string, v interface{}) (string, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", u, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if res.StatusCode != http.StatusOK {
		re := &Error{}
		if json.Unmarshal(body, re) != nil || re.Message == "" {
			re.Message = res.Status
		}
		re.Code = res.StatusCode
		return "", re
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

// Status returns the state of the fleet and all of its roles.
func (c *Client) Status(ctx context.Context) (*FleetInfo, error) {
	v := &FleetInfo{}
	if _, e := c.get(ctx, c.url("status"), v); e != nil {
		return nil, e
	}
	return v, nil
}

// Role returns the state of a single role.
func (c *Client) Role(ctx context.Context, name string) (*RoleInfo, error) {
	v := &RoleInfo{}
	if _, e := c.get(ctx, c.url("roles", name), v); e != nil {
		return nil, e
	}
	return v, nil
}

// Log returns output records of the role after since.  If wait is
// positive, the server holds the request until new output arrives or
// wait passes, whichever is first.
func (c *Client) Log(ctx context.Context, name string, since int64, wait time.Duration) (*LogInfo, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	if secs := int(wait / time.Second); secs > 0 {
		q.Set("wait", strconv.Itoa(secs))
	}
	v := &LogInfo{}
	if _, e := c.get(ctx, c.url("roles", name, "log")+"?"+q.Encode(), v); e != nil {
		return nil, e
	}
	return v, nil
}

// Healthy checks the health endpoint.  It reports false with a nil error
// when the server answers with anything other than 200.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", c.base+"/", nil)
	if e != nil {
		return false, e
	}
	res, e := c.client.Do(req)
	if e != nil {
		return false, e
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	return res.StatusCode == http.StatusOK, nil
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	if !strings.Contains(baseURI, "://") {
		baseURI = "http://" + baseURI
	}
	return &Client{
		base:   strings.TrimSuffix(baseURI, "/"),
		client: &http.Client{Transport: t},
	}
}

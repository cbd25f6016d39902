/*
Copyright © 2025 the gridslice authors.
This file is part of gridslice.

gridslice is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridslice is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridslice.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package dap retrieves DAP4 metadata and data responses from an OPeNDAP
// server. Metadata is fetched as DMR XML documents; data is fetched as
// NetCDF files constrained by a dap4.ce expression and stored on local
// disk.
package dap

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// Client retrieves granule metadata and constrained data.
type Client interface {
	// FetchDMR returns the granule's DMR metadata document.
	FetchDMR(ctx context.Context, granuleURL string) ([]byte, error)
	// FetchData downloads the granule data selected by the given DAP4
	// constraint expression (everything when empty) and returns the
	// path of the local NetCDF file.
	FetchData(ctx context.Context, granuleURL, constraintExpression string) (string, error)
}

// HTTPClient is a Client backed by an OPeNDAP server over HTTP. Repeated
// identical data requests within one process are deduplicated and served
// from an in-memory cache of downloaded file paths.
type HTTPClient struct {
	// HTTP is the underlying HTTP client. http.DefaultClient is used
	// when nil.
	HTTP *http.Client
	// OutputDir receives downloaded data files.
	OutputDir string
	// Token, when set, is sent as a bearer authorization header.
	Token string
	// Logger receives request logging. Logging is skipped when nil.
	Logger *logrus.Logger
	// CacheSize is the number of downloaded-file records held in the
	// memory cache. The default is 100.
	CacheSize int

	cache     *requestcache.Cache
	cacheInit sync.Once
}

type dataRequest struct {
	fetchURL string
	fileName string
}

// FetchDMR retrieves the DMR document describing a granule.
func (c *HTTPClient) FetchDMR(ctx context.Context, granuleURL string) ([]byte, error) {
	body, err := c.get(ctx, granuleURL+".dmr.xml")
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// FetchData downloads a constrained NetCDF data response to the output
// directory. The file name derives from the request URL, so identical
// requests map to identical files.
func (c *HTTPClient) FetchData(ctx context.Context, granuleURL, constraintExpression string) (string, error) {
	fetchURL := granuleURL + ".dap.nc4"
	if constraintExpression != "" {
		fetchURL += "?dap4.ce=" + url.QueryEscape(constraintExpression)
	}
	c.cacheInit.Do(func() {
		cacheSize := c.CacheSize
		if cacheSize == 0 {
			cacheSize = 100
		}
		c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			r := request.(dataRequest)
			return r.fileName, c.download(ctx, r.fetchURL, r.fileName)
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(cacheSize))
	})

	key := fmt.Sprintf("%x", sha1.Sum([]byte(fetchURL)))
	fileName := filepath.Join(c.OutputDir, key+".nc4")
	result, err := c.cache.NewRequest(ctx, dataRequest{fetchURL: fetchURL, fileName: fileName}, key).Result()
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// download fetches one URL to a local file, retrying transient failures.
func (c *HTTPClient) download(ctx context.Context, fetchURL, fileName string) error {
	if c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{"url": fetchURL, "file": fileName}).Info("retrieving data")
	}
	return backoff.RetryNotify(
		func() error {
			body, err := c.get(ctx, fetchURL)
			if err != nil {
				return err
			}
			defer body.Close()
			f, err := os.Create(fileName)
			if err != nil {
				return backoff.Permanent(err)
			}
			if _, err := io.Copy(f, body); err != nil {
				f.Close()
				os.Remove(fileName)
				return err
			}
			return f.Close()
		},
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, d time.Duration) {
			if c.Logger != nil {
				c.Logger.WithField("url", fetchURL).Warnf("%v: retrying in %v", err, d)
			}
		},
	)
}

// get performs one HTTP GET. Server-side (5xx) failures are retryable;
// any other non-success status is permanent.
func (c *HTTPClient) get(ctx context.Context, fetchURL string) (io.ReadCloser, error) {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequest(http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req = req.WithContext(ctx)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("dap: %s returned status %d", fetchURL, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, backoff.Permanent(fmt.Errorf("dap: %s returned status %d", fetchURL, resp.StatusCode))
	}
	return resp.Body, nil
}

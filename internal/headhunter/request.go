package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spigell/hh-screener/internal/utils"
	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
)

// waitFor is replaced in tests to avoid real delays.
var waitFor = utils.WaitFor

// ItemResponse is one page of a paged collection.
type ItemResponse struct {
	Items   []Item `json:"items"`
	Found   int    `json:"found"`
	Pages   int    `json:"pages"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

// Item is a raw collection element as returned by the API.
type Item = map[string]any

// GetItems makes GET requests to the HeadHunter API and returns items from all pages.
func (c *Client) GetItems(ctx context.Context, rawURL string, q url.Values) ([]Item, error) {
	var items []Item

	err := c.walkPages(ctx, rawURL, q, func(page *ItemResponse) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// walkPages requests page 0, 1, 2, ... until a page comes back empty or
// the declared page count is reached. Pages are fetched sequentially since
// each request depends on the previous answer.
func (c *Client) walkPages(ctx context.Context, rawURL string, q url.Values, fn func(*ItemResponse) error) error {
	u, err := c.resolve(rawURL)
	if err != nil {
		return err
	}

	query := u.Query()
	for key, values := range q {
		query[key] = values
	}
	query.Set("per_page", strconv.Itoa(c.PerPage))

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		query.Set("page", strconv.Itoa(page))
		u.RawQuery = query.Encode()

		var response ItemResponse
		if err := c.getJSON(ctx, u.String(), nil, &response); err != nil {
			return err
		}

		if len(response.Items) == 0 {
			break
		}

		if err := fn(&response); err != nil {
			return err
		}

		if page >= response.Pages-1 {
			break
		}

		c.logger.Debug("additional request needed", zap.String("reason", fmt.Sprintf(
			"current page (%d) < all page count (%d)", page+1, response.Pages),
		))
	}

	return nil
}

// resolve turns a path or an absolute collection URL into a request URL.
func (c *Client) resolve(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.IsAbs() {
		return u, nil
	}

	base, err := url.Parse(c.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", c.APIURL, err)
	}

	return base.ResolveReference(u), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, q url.Values, target any) error {
	data, err := c.do(ctx, http.MethodGet, rawURL, q)
	if err != nil {
		return err
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedPayload, redactURL(rawURL), err)
	}

	return nil
}

// do performs a request under the retry discipline of the client:
// 401/403 fail at once, 429 waits for Retry-After and is repeated exactly
// once, transient failures back off exponentially up to MaxAttempts.
func (c *Client) do(ctx context.Context, method, rawURL string, q url.Values) ([]byte, error) {
	var (
		failures    []error
		rateLimited bool
		delay       = c.Retry.BaseDelay
	)

	for attempt := 1; ; {
		body, err := c.send(ctx, method, rawURL, q)
		if err == nil {
			return body, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		switch {
		case errors.Is(err, ErrRateLimited):
			if rateLimited {
				return nil, err
			}
			rateLimited = true

			wait := c.Retry.RateLimitWait
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.HasRetryAfter {
				wait = statusErr.RetryAfter
			}

			c.logger.Warn("rate limited by HH.ru, waiting before retry",
				zap.String("url", redactURL(rawURL)),
				zap.Duration("retry_after", wait),
			)

			if err := waitFor(ctx, wait); err != nil {
				return nil, err
			}

		case errors.Is(err, ErrTransient):
			failures = append(failures, fmt.Errorf("attempt %d: %w", attempt, err))
			if attempt >= c.Retry.MaxAttempts {
				return nil, fmt.Errorf("%s %s: giving up after %d attempts: %w",
					method, redactURL(rawURL), attempt, errors.Join(failures...))
			}

			c.logger.Debug("transient failure, backing off",
				zap.String("url", redactURL(rawURL)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			if err := waitFor(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			attempt++

		default:
			return nil, err
		}
	}
}

// send performs a single HTTP exchange and classifies its outcome.
func (c *Client) send(ctx context.Context, method, rawURL string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req = c.setHeaders(req)
	// Additional headers. For GET requests only
	req.Header.Set("Content-Type", contentType)
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, newStatusError(resp)
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	return data, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	return io.ReadAll(reader)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("HH-User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

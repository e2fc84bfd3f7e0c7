// Package deliver sends emitted snapshots to a remote HTTP ingestion
// endpoint: a retrying POST client plus the mode-aware buffer that
// decides what to send each interval.
package deliver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const maxRedirects = 5

// transientStatus codes are worth retrying with backoff; everything else
// outside 2xx/3xx/405 fails immediately.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func jsonBody(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode delivery payload: %w", err)
	}
	return data, nil
}

// Client performs one bounded, retrying JSON POST per call. Backoff
// sleeps block the caller; the ingestion loop accepts that stall (it is
// bounded by retries × backoff growth).
type Client struct {
	http        *http.Client
	maxRetries  int
	backoffBase time.Duration

	// sleep is swapped out by tests to observe backoff delays.
	sleep func(time.Duration)
}

// NewClient builds a delivery client. timeout bounds each individual
// attempt; maxRetries caps retries on transient failures; backoffBase is
// the first retry delay, doubling per retry.
func NewClient(timeout time.Duration, maxRetries int, backoffBase time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			// Redirects are followed manually below so the POST method
			// and body survive 301/302/303.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		sleep:       time.Sleep,
	}
}

// Post serializes payload (a single snapshot or an array) and POSTs it
// to rawURL. It returns nil on any 2xx response and an error otherwise;
// no failure escapes as a panic.
func (c *Client) Post(rawURL string, payload any) error {
	body, err := jsonBody(payload)
	if err != nil {
		return err
	}

	current := rawURL
	attempt := 0
	delay := c.backoffBase
	redirects := 0
	slashToggled := false

	for {
		status, location, err := c.attempt(current, body)
		if err != nil {
			// Transport-level failure (connect refused, timeout, reset).
			attempt++
			if attempt > c.maxRetries {
				return fmt.Errorf("post %s: %w", current, err)
			}
			slog.Debug("delivery attempt failed, backing off",
				"url", current, "error", err, "delay", delay)
			c.sleep(delay)
			delay *= 2
			continue
		}

		switch {
		case status >= 200 && status < 300:
			return nil

		case status == http.StatusMovedPermanently ||
			status == http.StatusFound ||
			status == http.StatusSeeOther ||
			status == http.StatusTemporaryRedirect ||
			status == http.StatusPermanentRedirect:
			if location == "" {
				return fmt.Errorf("post %s: redirect %d without Location", current, status)
			}
			redirects++
			if redirects > maxRedirects {
				return fmt.Errorf("post %s: too many redirects (last Location %q)", current, location)
			}
			next, err := resolveLocation(current, location)
			if err != nil {
				return fmt.Errorf("post %s: bad redirect Location %q: %w", current, location, err)
			}
			slog.Debug("following redirect, preserving POST",
				"status", status, "url", next)
			current = next

		case status == http.StatusMethodNotAllowed:
			// Some ingestion gateways only route one of /path and /path/.
			// Toggle the trailing slash exactly once.
			alt := toggleTrailingSlash(current)
			if slashToggled || alt == current {
				return fmt.Errorf("post %s: method not allowed", current)
			}
			slashToggled = true
			slog.Debug("got 405, retrying with URL variant", "url", alt)
			current = alt

		case transientStatus[status]:
			attempt++
			if attempt > c.maxRetries {
				return fmt.Errorf("post %s: transient status %d, retries exhausted", current, status)
			}
			slog.Debug("transient delivery status, backing off",
				"url", current, "status", status, "delay", delay)
			c.sleep(delay)
			delay *= 2

		default:
			return fmt.Errorf("post %s: unexpected status %d", current, status)
		}
	}
}

// attempt issues one POST and reports the status code and Location
// header. The body is drained so the connection can be reused.
func (c *Client) attempt(url string, body []byte) (status int, location string, err error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gnbmon/1.0")
	req.Header.Set("Connection", "close")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, resp.Header.Get("Location"), nil
}

// resolveLocation resolves a possibly-relative Location header against
// the URL the redirect came from.
func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// toggleTrailingSlash adds a trailing path slash if absent, removes it
// if present.
func toggleTrailingSlash(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Path == "" {
		u.Path = "/"
	} else if u.Path[len(u.Path)-1] == '/' {
		u.Path = u.Path[:len(u.Path)-1]
	} else {
		u.Path += "/"
	}
	return u.String()
}

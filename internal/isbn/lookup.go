package isbn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Result is the book-shaped data a lookup returns. Absent values are empty.
type Result struct {
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	ISBN            string   `json:"isbn"`
	PublicationDate string   `json:"publicationDate"`
	CoverURL        string   `json:"coverUrl"`
	Categories      []string `json:"categories"`
	Source          string   `json:"source"`
}

// Response is the wire format of the lookup endpoint.
type Response struct {
	Success bool    `json:"success"`
	Book    *Result `json:"book,omitempty"`
}

// Lookuper finds book metadata by ISBN.
//
// Lookup returns (nil, nil) when the book does not exist and a *LookupError
// when the lookup itself failed, so callers can tell the two apart.
type Lookuper interface {
	Lookup(ctx context.Context, isbn string) (*Result, error)
}

// ErrLookup matches any *LookupError.
var ErrLookup = errors.New("isbn lookup failed")

// ErrInvalid is returned for ISBNs that do not normalize to 10 or 13 digits.
var ErrInvalid = errors.New("invalid isbn")

// LookupError reports a transport or upstream failure. The user may retry.
type LookupError struct {
	ISBN string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup isbn %s: %v", e.ISBN, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool { return target == ErrLookup }

// Client calls a lookup endpoint of the form GET <base>?isbn=<digits>.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for baseURL. A zero timeout means 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup implements Lookuper. HTTP 4xx and {"success": false} mean not found;
// network errors, 5xx and undecodable bodies are LookupErrors.
func (c *Client) Lookup(ctx context.Context, raw string) (*Result, error) {
	f := ValidateFormat(raw)
	if !f.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, f.Message)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, &LookupError{ISBN: f.Normalized, Err: err}
	}
	q := u.Query()
	q.Set("isbn", f.Normalized)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &LookupError{ISBN: f.Normalized, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{ISBN: f.Normalized, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, &LookupError{ISBN: f.Normalized, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &LookupError{ISBN: f.Normalized, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !body.Success || body.Book == nil {
		return nil, nil
	}
	res := *body.Book
	if res.ISBN == "" {
		res.ISBN = f.Normalized
	}
	if res.Categories == nil {
		res.Categories = []string{}
	}
	return &res, nil
}

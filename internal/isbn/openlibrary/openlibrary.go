// Package openlibrary looks up ISBNs against the Open Library books API.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/logger"
)

// Source is reported in every Result.
const Source = "openlibrary"

// DefaultBaseURL is the public Open Library host.
const DefaultBaseURL = "https://openlibrary.org"

// Options configures a Provider. Zero values select the defaults.
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration // default 15s
	RPS        int           // requests per second, default 1; negative disables limiting
	MaxRetries int           // retries on network errors, 429 and 5xx
	Backoff    time.Duration // first retry delay, doubled each retry; default 1s
}

// Provider implements isbn.Lookuper.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// New returns a Provider.
func New(opts Options, log logger.Logger) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nxt-shelf"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RPS == 0 {
		opts.RPS = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(opts.RPS)), 1)
	}
	return &Provider{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		log:        log,
	}
}

// bookDetails matches api/books?jscmd=data
type bookDetails struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	PublishDate string `json:"publish_date"`
	Cover       struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Subjects []struct {
		Name string `json:"name"`
	} `json:"subjects"`
}

// Lookup implements isbn.Lookuper.
func (p *Provider) Lookup(ctx context.Context, raw string) (*isbn.Result, error) {
	f := isbn.ValidateFormat(raw)
	if !f.Valid {
		return nil, fmt.Errorf("%w: %s", isbn.ErrInvalid, f.Message)
	}

	bibkey := "ISBN:" + f.Normalized
	u := fmt.Sprintf("%s/api/books?bibkeys=%s&jscmd=data&format=json", p.baseURL, bibkey)

	var res map[string]bookDetails
	if err := p.get(ctx, u, &res); err != nil {
		return nil, &isbn.LookupError{ISBN: f.Normalized, Err: err}
	}

	d, ok := res[bibkey]
	if !ok {
		p.log.Debug("isbn not found", logger.String("isbn", f.Normalized))
		return nil, nil
	}
	return toResult(f.Normalized, d), nil
}

func toResult(number string, d bookDetails) *isbn.Result {
	authors := make([]string, 0, len(d.Authors))
	for _, a := range d.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	categories := make([]string, 0, len(d.Subjects))
	for _, s := range d.Subjects {
		if s.Name != "" {
			categories = append(categories, s.Name)
		}
	}

	cover := d.Cover.Large
	if cover == "" {
		cover = d.Cover.Medium
	}
	return &isbn.Result{
		Title:           d.Title,
		Author:          strings.Join(authors, ", "),
		ISBN:            number,
		PublicationDate: d.PublishDate,
		CoverURL:        cover,
		Categories:      categories,
		Source:          Source,
	}
}

func (p *Provider) get(ctx context.Context, url string, target interface{}) error {
	var lastErr error
	for i := 0; i <= p.maxRetries; i++ {
		if i > 0 {
			backoff := p.backoff * time.Duration(1<<uint(i-1))
			p.log.Debug("retrying open library request",
				logger.Int("attempt", i),
				logger.Duration("backoff", backoff),
				logger.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		retry, err := p.do(ctx, url, target)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", p.maxRetries, lastErr)
}

// do performs one request. retry reports whether a failure is worth retrying.
func (p *Provider) do(ctx context.Context, url string, target interface{}) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, err
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObiAU/mentionwatch/internal/models"
)

const (
	defaultSearchURL = "https://api.twitter.com/2/tweets/search/recent"

	// timeLayout is ISO-8601 with microseconds, always UTC.
	timeLayout = "2006-01-02T15:04:05.000000Z"

	tweetFields = "id,text,author_id,created_at"
	userFields  = "name,username,public_metrics"

	maxErrorBody = 4096
)

// TwitterClient queries the recent-search endpoint. It never retries and
// never follows pagination; the poll loop is the retry mechanism.
type TwitterClient struct {
	token   string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

type TwitterOption func(*TwitterClient)

// WithBaseURL sets a custom search endpoint (for testing).
func WithBaseURL(u string) TwitterOption {
	return func(c *TwitterClient) { c.baseURL = u }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) TwitterOption {
	return func(c *TwitterClient) { c.client.Timeout = d }
}

func WithTwitterLogger(l zerolog.Logger) TwitterOption {
	return func(c *TwitterClient) { c.logger = l }
}

func NewTwitterClient(token string, opts ...TwitterOption) *TwitterClient {
	c := &TwitterClient{
		token:   token,
		baseURL: defaultSearchURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TwitterClient) Fetch(ctx context.Context, account models.TrackedAccount, window models.TimeWindow, maxResults int, class models.QueryClass) (*models.RawResult, error) {
	reqURL := c.baseURL + "?" + buildSearchParams(account, window, maxResults, class).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("account", string(account)).
		Stringer("query", class).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("search request completed")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ConnectivityError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result models.RawResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if result.Meta.NextToken != "" {
		c.logger.Debug().
			Str("account", string(account)).
			Stringer("query", class).
			Int("result_count", result.Meta.ResultCount).
			Msg("more results available, only the first page is used")
	}

	return &result, nil
}

func buildSearchParams(account models.TrackedAccount, window models.TimeWindow, maxResults int, class models.QueryClass) url.Values {
	params := url.Values{}
	params.Set("query", searchQuery(account, class))
	params.Set("start_time", formatTime(window.Start))
	params.Set("end_time", formatTime(window.End))
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("expansions", "author_id")
	params.Set("tweet.fields", tweetFields)
	params.Set("user.fields", userFields)
	return params
}

func searchQuery(account models.TrackedAccount, class models.QueryClass) string {
	if class == models.QueryMentions {
		return fmt.Sprintf("to:%s -is:retweet is:verified", account)
	}
	return fmt.Sprintf("from:%s", account)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (c *TwitterClient) GetName() string {
	return "twitter"
}

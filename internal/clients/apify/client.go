package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

// Client drives the places-scraping actor: start a run, wait for it, and
// collect the dataset it produced.
type Client interface {
	RunSearch(ctx context.Context, input RunInput) (*Run, error)
	WaitForRun(ctx context.Context, runID string) (*Run, error)
	DatasetItems(ctx context.Context, datasetID string) ([]RawPlace, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	token      string
	actorID    string
	httpClient *http.Client
	maxRetries int
	pollEvery  time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	token := os.Getenv("APIFY_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("missing APIFY_TOKEN")
	}
	baseURL := os.Getenv("APIFY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.apify.com"
	}
	actorID := os.Getenv("APIFY_PLACES_ACTOR")
	if actorID == "" {
		actorID = "compass~crawler-google-places"
	}
	timeoutSec := 120
	if v := os.Getenv("APIFY_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &client{
		log:        log.With("client", "ApifyClient"),
		baseURL:    baseURL,
		token:      token,
		actorID:    actorID,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: 3,
		pollEvery:  10 * time.Second,
	}, nil
}

// RunInput is the full actor configuration for one jurisdiction. Country is
// always US; the flags mirror what the directory actually needs from the
// provider.
type RunInput struct {
	SearchStrings      []string `json:"searchStringsArray"`
	MaxPlacesPerSearch int      `json:"maxCrawledPlacesPerSearch,omitempty"`
	CountryCode        string   `json:"countryCode"`
	State              string   `json:"state,omitempty"`
	City               string   `json:"city,omitempty"`
	MaxReviews         int      `json:"maxReviews"`
	MaxQuestions       int      `json:"maxQuestions"`
	MaxImages          int      `json:"maxImages"`
	ScrapeNestedPlaces bool     `json:"scrapePlacesInsidePlaces"`
	DeepScan           bool     `json:"deeperCityScrape"`
	SkipClosedPlaces   bool     `json:"skipClosedPlaces"`
}

// Run is the provider's run descriptor.
type Run struct {
	ID               string     `json:"id"`
	ActID            string     `json:"actId"`
	Status           string     `json:"status"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
	Stats            struct {
		ComputeUnits float64 `json:"computeUnits"`
	} `json:"stats"`
	UsageTotalUSD float64 `json:"usageTotalUsd"`
}

func (r *Run) Finished() bool {
	switch r.Status {
	case "SUCCEEDED", "FAILED", "ABORTED", "TIMED-OUT":
		return true
	default:
		return false
	}
}

// RawPlace is one untouched listing record from the provider dataset. Only
// the fields the transform consumes are typed; everything else rides along in
// tests via the JSON it was decoded from.
type RawPlace struct {
	PlaceID           string          `json:"placeId"`
	Title             string          `json:"title"`
	Subtitle          string          `json:"subTitle"`
	Description       string          `json:"description"`
	CategoryName      string          `json:"categoryName"`
	Categories        []string        `json:"categories"`
	Website           string          `json:"website"`
	Phone             string          `json:"phone"`
	PermanentlyClosed bool            `json:"permanentlyClosed"`
	TemporarilyClosed bool            `json:"temporarilyClosed"`
	Street            string          `json:"street"`
	City              string          `json:"city"`
	State             string          `json:"state"`
	PostalCode        string          `json:"postalCode"`
	CountryCode       string          `json:"countryCode"`
	Neighborhood      string          `json:"neighborhood"`
	PlusCode          string          `json:"plusCode"`
	Location          *RawLocation    `json:"location"`
	TotalScore        *float64        `json:"totalScore"`
	ReviewsCount      int             `json:"reviewsCount"`
	ReviewsDist       json.RawMessage `json:"reviewsDistribution"`
	Reviews           json.RawMessage `json:"reviews"`
	ReviewsTags       json.RawMessage `json:"reviewsTags"`
	QuestionsAnswers  json.RawMessage `json:"questionsAndAnswers"`
}

type RawLocation struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("apify http %d: %s", e.StatusCode, e.Body)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var hErr *httpError
	if errors.As(err, &hErr) {
		if hErr.StatusCode == 408 || hErr.StatusCode == 429 {
			return true
		}
		return hErr.StatusCode >= 500 && hErr.StatusCode <= 599
	}
	return false
}

func (c *client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("apify decode error: %w", uErr)
	}
	return nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = c.doOnce(ctx, method, path, body, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == c.maxRetries {
			return lastErr
		}
		c.log.Warn("Apify request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", lastErr.Error(),
		)
		time.Sleep(backoff)
		backoff *= 2
	}
	return lastErr
}

func (c *client) RunSearch(ctx context.Context, input RunInput) (*Run, error) {
	var envelope struct {
		Data Run `json:"data"`
	}
	path := fmt.Sprintf("/v2/acts/%s/runs", url.PathEscape(c.actorID))
	if err := c.do(ctx, http.MethodPost, path, input, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *client) WaitForRun(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID required")
	}
	path := fmt.Sprintf("/v2/actor-runs/%s", url.PathEscape(runID))
	for {
		var envelope struct {
			Data Run `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
			return nil, err
		}
		if envelope.Data.Finished() {
			if envelope.Data.Status != "SUCCEEDED" {
				return &envelope.Data, fmt.Errorf("actor run %s ended with status %s", runID, envelope.Data.Status)
			}
			return &envelope.Data, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollEvery):
		}
	}
}

func (c *client) DatasetItems(ctx context.Context, datasetID string) ([]RawPlace, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("datasetID required")
	}
	path := fmt.Sprintf("/v2/datasets/%s/items?clean=true&format=json", url.PathEscape(datasetID))
	var items []RawPlace
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

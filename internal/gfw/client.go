package gfw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mpawatch/mpawatch/internal/ingestion"
	"github.com/mpawatch/mpawatch/internal/models"
)

const (
	reportPath = "/4wings/report"

	defaultTimeout = 60 * time.Second
	maxErrorBody   = 512
)

// Config holds the parameters for talking to the 4Wings report API.
type Config struct {
	BaseURL string
	Token   string
	Dataset string
	Timeout time.Duration
}

// Client fetches monthly per-vessel fishing effort for a region. It
// implements ingestion.ActivitySource.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]models.ActivityRecord]
	logger     *slog.Logger
}

var _ ingestion.ActivitySource = (*Client)(nil)

// NewClient creates a 4Wings client. The circuit breaker opens after a run of
// consecutive upstream failures and rejects calls until it half-opens.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: newBreaker("gfw-4wings", logger),
		logger:  logger,
	}
}

// reportRequest is the POST body of a 4Wings report.
type reportRequest struct {
	Region models.Region `json:"region"`
}

// reportResponse holds one map per requested dataset, keyed by the resolved
// dataset version.
type reportResponse struct {
	Entries []map[string][]reportRow `json:"entries"`
}

type reportRow struct {
	Date     string     `json:"date"`
	VesselID string     `json:"vesselId"`
	MMSI     flexString `json:"mmsi"`
	ShipName string     `json:"shipName"`
	Flag     string     `json:"flag"`
	GearType string     `json:"geartype"`
	Hours    float64    `json:"hours"`
}

// FetchActivity runs one report query for [start, end]. Authentication
// failures are returned as ingestion.ErrorKindAuth; everything else is
// transient.
func (c *Client) FetchActivity(ctx context.Context, region models.Region, start, end time.Time) ([]models.ActivityRecord, error) {
	records, err := c.breaker.Execute(func() ([]models.ActivityRecord, error) {
		return c.fetch(ctx, region, start, end)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ingestion.NewTransientError(0, fmt.Errorf("gfw circuit breaker: %w", err))
		}
		return nil, err
	}
	return records, nil
}

func (c *Client) fetch(ctx context.Context, region models.Region, start, end time.Time) ([]models.ActivityRecord, error) {
	body, err := json.Marshal(reportRequest{Region: region})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.reportURL(start, end), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	c.logger.Debug("requesting 4wings report",
		"region", region.ID,
		"start", start.Format(models.DateLayout),
		"end", end.Format(models.DateLayout))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ingestion.NewTransientError(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var payload reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, ingestion.NewTransientError(resp.StatusCode, fmt.Errorf("failed to decode report: %w", err))
	}

	return c.toRecords(payload, region), nil
}

func (c *Client) reportURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("spatial-resolution", "HIGH")
	q.Set("temporal-resolution", "MONTHLY")
	q.Set("group-by", "VESSEL_ID")
	q.Set("datasets[0]", c.cfg.Dataset)
	q.Set("date-range", start.Format(models.DateLayout)+","+end.Format(models.DateLayout))
	q.Set("format", "JSON")
	return c.cfg.BaseURL + reportPath + "?" + q.Encode()
}

// toRecords converts report rows, dropping any that fail validation.
func (c *Client) toRecords(payload reportResponse, region models.Region) []models.ActivityRecord {
	var records []models.ActivityRecord
	dropped := 0

	for _, entry := range payload.Entries {
		for _, rows := range entry {
			for _, row := range rows {
				rec, err := row.toRecord()
				if err == nil {
					err = rec.Validate()
				}
				if err != nil {
					dropped++
					c.logger.Debug("dropping invalid report row", "region", region.ID, "error", err)
					continue
				}
				records = append(records, rec)
			}
		}
	}

	if dropped > 0 {
		c.logger.Warn("dropped invalid report rows", "region", region.ID, "dropped", dropped, "kept", len(records))
	}
	return records
}

func (r reportRow) toRecord() (models.ActivityRecord, error) {
	date, err := parseBucketDate(r.Date)
	if err != nil {
		return models.ActivityRecord{}, err
	}
	return models.ActivityRecord{
		Date:     date,
		VesselID: r.VesselID,
		MMSI:     string(r.MMSI),
		ShipName: r.ShipName,
		Flag:     r.Flag,
		GearType: r.GearType,
		Hours:    r.Hours,
	}, nil
}

func parseBucketDate(raw string) (time.Time, error) {
	for _, layout := range []string{models.MonthLayout, models.DateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised bucket date %q", raw)
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("4wings report returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ingestion.NewAuthError(resp.StatusCode, err)
	default:
		return ingestion.NewTransientError(resp.StatusCode, err)
	}
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("mmsi: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*s = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*s = flexString(n.String())
	return nil
}

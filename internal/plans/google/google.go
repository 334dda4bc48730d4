// Package google mirrors saved plans into a Google spreadsheet, one tab per
// plan, so they can be shared and charted outside the application.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

const tabPrefix = "plan "

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	// Tab title -> sheet id, refreshed after cacheValidDuration.
	mu                 sync.Mutex
	sheetIDs           map[string]int64
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ plans.Mirror = (*Client)(nil)

// New creates a Sheets client using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		cacheValidDuration: 5 * time.Minute,
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		credentialsJSON, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling keeps connections to the Sheets API warm between
// mirror runs.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// TabTitle is the tab holding the mirror of planID.
func TabTitle(planID string) string {
	return tabPrefix + planID
}

func a1(title, cell string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cell
}

// MirrorPlan rewrites the plan's tab with the derived table.
func (c *Client) MirrorPlan(ctx context.Context, p core.Plan) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := TabTitle(p.ID)
	if _, err := c.ensureTab(ctx, title); err != nil {
		return "", err
	}

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, a1(title, "A:ZZZ"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", title, err)
	}

	values := planValues(p, core.BuildTable(p))
	vr := &gsheet.ValueRange{Values: values}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(title, "A1"), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write %s: %w", title, err)
	}

	slog.InfoContext(ctx, "Plan mirrored to Google Sheets",
		"plan_id", p.ID,
		"version", p.Version,
		"range", resp.UpdatedRange,
		"cells", resp.UpdatedCells)
	return resp.UpdatedRange, nil
}

// DeleteMirror removes the plan's tab. A missing tab is not an error.
func (c *Client) DeleteMirror(ctx context.Context, planID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := TabTitle(planID)
	ids, err := c.sheetIndex(ctx)
	if err != nil {
		return err
	}
	id, ok := ids[title]
	if !ok {
		return nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: id},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete tab %s: %w", title, err)
	}
	c.InvalidateSheetCache()
	slog.InfoContext(ctx, "Plan mirror deleted", "plan_id", planID)
	return nil
}

// MirroredVersion reads the version stamped in the header of the plan's tab.
func (c *Client) MirroredVersion(ctx context.Context, planID string) (int64, bool, error) {
	if c.svc == nil {
		return 0, false, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1(TabTitle(planID), "A1:F1")).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read mirror header: %w", err)
	}
	v, ok := parseMirrorVersion(resp.Values)
	return v, ok, nil
}

func (c *Client) ensureTab(ctx context.Context, title string) (int64, error) {
	ids, err := c.sheetIndex(ctx)
	if err != nil {
		return 0, err
	}
	if id, ok := ids[title]; ok {
		return id, nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add tab %s: %w", title, err)
	}
	var id int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = resp.Replies[0].AddSheet.Properties.SheetId
	}
	c.mu.Lock()
	if c.sheetIDs != nil {
		c.sheetIDs[title] = id
	}
	c.mu.Unlock()
	return id, nil
}

func (c *Client) sheetIndex(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	if c.sheetIDs != nil && time.Now().Before(c.cacheExpiresAt) {
		out := make(map[string]int64, len(c.sheetIDs))
		for k, v := range c.sheetIDs {
			out[k] = v
		}
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	ids := make(map[string]int64, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			ids[s.Properties.Title] = s.Properties.SheetId
		}
	}

	c.mu.Lock()
	c.sheetIDs = ids
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	out := make(map[string]int64, len(ids))
	for k, v := range ids {
		out[k] = v
	}
	return out, nil
}

// InvalidateSheetCache forces the next call to re-read the tab list.
func (c *Client) InvalidateSheetCache() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

func parseMirrorVersion(values [][]interface{}) (int64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	row := values[0]
	for i := 0; i+1 < len(row); i++ {
		if strings.EqualFold(strings.TrimSpace(fmt.Sprint(row[i])), "version") {
			v, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[i+1])), 10, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

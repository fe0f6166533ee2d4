package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

// ErrUpstreamUnavailable marks transient feed failures. Callers abort the
// current run and retry on their next scheduled trigger.
var ErrUpstreamUnavailable = errors.New("availability feed unavailable")

// Feed is the read-only availability source consumed by the synchronizer and
// the branch cache.
type Feed interface {
	// ActiveBranches returns branches with at least one filled cell in the
	// current calendar week.
	ActiveBranches(ctx context.Context) ([]string, error)
	// AvailableDates returns the branch's open dates of the current week that
	// have not fully passed, in storage layout, ordered.
	AvailableDates(ctx context.Context, branch string) ([]string, error)
	// SameWeek reports whether the feed's last listed date still falls inside
	// the week containing now.
	SameWeek(ctx context.Context, now time.Time) (bool, error)
}

// Client reads the staff availability spreadsheet through the Sheets API.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	closeHour     int
	loc           *time.Location
	logger        *zerolog.Logger
	now           func() time.Time
}

// NewClient authenticates with a service-account credentials file and returns
// a read-only spreadsheet client.
func NewClient(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, closeHour int, loc *time.Location, logger *zerolog.Logger) (*Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	conf, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		closeHour:     closeHour,
		loc:           loc,
		logger:        logger,
		now:           func() time.Time { return time.Now().In(loc) },
	}, nil
}

func (c *Client) fetch(ctx context.Context) (grid, error) {
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, c.sheetName+"!A1:Z").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	rows := make(grid, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprint(cell)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func (c *Client) ActiveBranches(ctx context.Context) ([]string, error) {
	g, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return g.activeBranches(c.now()), nil
}

func (c *Client) AvailableDates(ctx context.Context, branch string) ([]string, error) {
	g, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return g.availableDates(branch, c.now(), c.closeHour), nil
}

func (c *Client) SameWeek(ctx context.Context, now time.Time) (bool, error) {
	g, err := c.fetch(ctx)
	if err != nil {
		return false, err
	}
	return g.sameWeek(now), nil
}

// grid is the raw cell matrix of the sheet. The parsing below is pure so the
// feed semantics are testable without the API.
//
// Expected layout: a header row whose first cell says the date column
// ("Дата"/"Date"), branch names in the remaining header cells, one row per
// date with non-empty cells marking the branch open on that date.
type grid [][]string

// headerIndex locates the header row.
func (g grid) headerIndex() int {
	for i, row := range g {
		for _, cell := range row {
			low := strings.ToLower(strings.TrimSpace(cell))
			if low == "дата" || low == "д/н" || low == "date" {
				return i
			}
		}
	}
	return -1
}

// branchColumns maps column index to branch name. Branch columns start after
// the date column; a second service column is tolerated.
func (g grid) branchColumns(headerIdx int) map[int]string {
	header := g[headerIdx]
	startIdx := 1
	if len(header) >= 3 {
		startIdx = 2
	}
	cols := make(map[int]string)
	for i := startIdx; i < len(header); i++ {
		if name := strings.TrimSpace(header[i]); name != "" {
			cols[i] = name
		}
	}
	return cols
}

func (g grid) headerOrder(headerIdx int) []string {
	cols := g.branchColumns(headerIdx)
	idxs := make([]int, 0, len(cols))
	for i := range cols {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	names := make([]string, 0, len(idxs))
	for _, i := range idxs {
		names = append(names, cols[i])
	}
	return names
}

// activeBranches returns the branches with a filled cell in any row of the
// week containing now, keeping header order. Rows with unparsable dates are
// skipped one at a time.
func (g grid) activeBranches(now time.Time) []string {
	headerIdx := g.headerIndex()
	if headerIdx < 0 {
		return nil
	}
	cols := g.branchColumns(headerIdx)
	weekStart, weekEnd := models.WeekBounds(now)

	active := make(map[string]bool)
	for _, row := range g[headerIdx+1:] {
		if len(row) == 0 {
			continue
		}
		date, err := models.ParseDate(row[0])
		if err != nil {
			continue
		}
		if !models.InWeek(date, weekStart, weekEnd) {
			continue
		}
		for i, name := range cols {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				active[name] = true
			}
		}
	}

	var result []string
	for _, name := range g.headerOrder(headerIdx) {
		if active[name] {
			result = append(result, name)
		}
	}
	return result
}

// availableDates returns the branch's open dates (storage layout) within the
// current week, dropping past days and today once the closing hour is reached.
func (g grid) availableDates(branch string, now time.Time, closeHour int) []string {
	headerIdx := g.headerIndex()
	if headerIdx < 0 {
		return nil
	}

	branchCol := -1
	for i, name := range g.branchColumns(headerIdx) {
		if name == branch {
			branchCol = i
			break
		}
	}
	if branchCol < 0 {
		return nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	seen := make(map[string]bool)
	var dates []string
	for _, row := range g[headerIdx+1:] {
		if len(row) <= branchCol {
			continue
		}
		date, err := models.ParseDate(row[0])
		if err != nil {
			continue
		}
		if strings.TrimSpace(row[branchCol]) == "" {
			continue
		}

		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, now.Location())
		if day.Before(today) {
			continue
		}
		if day.Equal(today) && now.Hour() >= closeHour {
			continue
		}

		key := date.Format(models.DateLayout)
		if !seen[key] {
			seen[key] = true
			dates = append(dates, key)
		}
	}
	sort.Strings(dates)
	return dates
}

// sameWeek reports whether the feed's first parsable date is inside the week
// containing now. The staff rewrite the sheet in place every week, so the
// first row marks which week the sheet describes. A feed with no parsable
// dates counts as a different week so the synchronizer rebuilds the schedule.
func (g grid) sameWeek(now time.Time) bool {
	headerIdx := g.headerIndex()
	if headerIdx < 0 {
		return false
	}

	for _, row := range g[headerIdx+1:] {
		if len(row) == 0 {
			continue
		}
		date, err := models.ParseDate(row[0])
		if err != nil {
			continue
		}
		weekStart, weekEnd := models.WeekBounds(now)
		return models.InWeek(date, weekStart, weekEnd)
	}
	return false
}

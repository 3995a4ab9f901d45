// Package sheets imports publicly shared Google Sheets through their CSV
// export endpoint and writes enriched tables back through the Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/table"
)

var (
	ErrInvalidURL = errors.New("not a Google Sheets url")
	ErrNotShared  = errors.New("sheet is not publicly readable")

	sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	gidPattern     = regexp.MustCompile(`gid=([0-9]+)`)
)

type Importer struct {
	client *http.Client
	// exportBase is overridden in tests.
	exportBase string
}

func NewImporter(timeout time.Duration) *Importer {
	return &Importer{
		client:     &http.Client{Timeout: timeout},
		exportBase: "https://docs.google.com",
	}
}

// ParseURL returns the spreadsheet ID of a sheet link and the worksheet gid
// given in it, or "" when the link names none.
func ParseURL(sheetURL string) (id, gid string, err error) {
	u, err := url.Parse(sheetURL)
	if err != nil || u.Host == "" {
		return "", "", ErrInvalidURL
	}
	m := sheetIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", ErrInvalidURL
	}
	if g := gidPattern.FindStringSubmatch(u.RawQuery + "#" + u.Fragment); g != nil {
		gid = g[1]
	}
	return m[1], gid, nil
}

// ExportURL converts a sheet link into its CSV export link. The worksheet
// given by gid in the link is kept, the first one is used otherwise.
func (i *Importer) ExportURL(sheetURL string) (string, error) {
	id, gid, err := ParseURL(sheetURL)
	if err != nil {
		return "", err
	}
	q := url.Values{"format": {"csv"}}
	if gid != "" {
		q.Set("gid", gid)
	}
	return fmt.Sprintf("%s/spreadsheets/d/%s/export?%s", i.exportBase, id, q.Encode()), nil
}

// Import downloads the sheet and parses it as a table.
func (i *Importer) Import(ctx context.Context, sheetURL string) (*entity.Table, error) {
	target, err := i.ExportURL(sheetURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotShared
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch sheet: unexpected status %d", resp.StatusCode)
	}
	return table.ReadCSV(resp.Body)
}

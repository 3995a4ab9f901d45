package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/user/enrich-service/internal/entity"
)

var ErrNoWriteAccess = errors.New("sheet is not writable with the configured credentials")

// Writer overwrites a worksheet with a table through the Sheets API. The
// sheet must be shared with the service account of the credentials.
type Writer struct {
	svc    *gsheets.Service
	logger *zap.Logger
}

// NewWriter authenticates with a service-account key file. Extra options
// are appended after the credentials.
func NewWriter(ctx context.Context, credentialsFile string, logger *zap.Logger, opts ...option.ClientOption) (*Writer, error) {
	base := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		base = append(base, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := gsheets.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &Writer{svc: svc, logger: logger}, nil
}

// Write replaces the worksheet named by the link (the first one without a
// gid) starting at A1: a header row of columns, then one row per record.
func (w *Writer) Write(ctx context.Context, sheetURL string, columns []string, rows []map[string]any) error {
	id, gid, err := ParseURL(sheetURL)
	if err != nil {
		return err
	}

	target := "A1"
	if gid != "" {
		title, err := w.sheetTitle(ctx, id, gid)
		if err != nil {
			return err
		}
		target = fmt.Sprintf("'%s'!A1", strings.ReplaceAll(title, "'", "''"))
	}

	values := make([][]interface{}, 0, len(rows)+1)
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	values = append(values, header)
	for _, row := range rows {
		line := make([]interface{}, len(columns))
		for i, c := range columns {
			line[i] = cellValue(row[c])
		}
		values = append(values, line)
	}

	_, err = w.svc.Spreadsheets.Values.Update(id, target, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify(err)
	}
	w.logger.Info("Sheet updated", zap.String("spreadsheet_id", id), zap.String("range", target), zap.Int("rows", len(rows)))
	return nil
}

func (w *Writer) sheetTitle(ctx context.Context, id, gid string) (string, error) {
	want, err := strconv.ParseInt(gid, 10, 64)
	if err != nil {
		return "", ErrInvalidURL
	}
	ss, err := w.svc.Spreadsheets.Get(id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.SheetId == want {
			return s.Properties.Title, nil
		}
	}
	return "", fmt.Errorf("%w: no worksheet with gid %s", ErrInvalidURL, gid)
}

// cellValue keeps numbers and booleans typed so the sheet does not store
// them as text.
func cellValue(v any) interface{} {
	switch val := v.(type) {
	case float64, bool:
		return val
	default:
		return entity.Stringify(v)
	}
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNoWriteAccess, gerr.Message)
		}
	}
	return fmt.Errorf("update sheet: %w", err)
}

// Package sitelist loads the sites a batch run should contact from CSV or XLSX files.
package sitelist

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Options controls how rows become sites.
type Options struct {
	// DefaultMessage fills rows without a message column value.
	DefaultMessage string
	// DefaultContext fills rows without a context column value.
	DefaultContext string
	// Sheet selects an XLSX sheet by name. Empty means the first sheet.
	Sheet string
	// Delimiter overrides the CSV separator.
	Delimiter rune
}

// column aliases accepted in the header row, lowercased.
var columns = map[string][]string{
	"url":         {"url", "website", "site", "domain", "homepage"},
	"message":     {"message", "body", "text"},
	"context":     {"context", "business_context", "notes", "about"},
	"contact_url": {"contact_url", "contact_page", "contact"},
	"subject":     {"subject", "topic"},
}

// Load reads a site list from path. The format is chosen by extension: .xlsx uses the
// first (or named) sheet, anything else is parsed as CSV.
func Load(ctx context.Context, path string, opts Options) ([]model.Site, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := readXLSX(path, opts.Sheet)
		if err != nil {
			return nil, err
		}
		return fromRows(rows, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sitelist: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ParseCSV(ctx, f, opts)
}

// ParseCSV reads a header-mapped CSV site list.
func ParseCSV(ctx context.Context, r io.Reader, opts Options) ([]model.Site, error) {
	rowCh, errCh := streamCSV(ctx, r, opts.Delimiter)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return fromRows(rows, opts)
}

func fromRows(rows [][]string, opts Options) ([]model.Site, error) {
	if len(rows) == 0 {
		return nil, eris.New("sitelist: empty file")
	}
	idx := headerIndex(rows[0])
	if _, ok := idx["url"]; !ok {
		return nil, eris.Errorf("sitelist: header has no url column (got %s)", strings.Join(rows[0], ", "))
	}

	var sites []model.Site
	for i, row := range rows[1:] {
		site := model.Site{
			URL:             normalizeURL(cell(row, idx, "url")),
			ContactURL:      normalizeURL(cell(row, idx, "contact_url")),
			Message:         cell(row, idx, "message"),
			BusinessContext: cell(row, idx, "context"),
			Subject:         cell(row, idx, "subject"),
		}
		if site.URL == "" && site.ContactURL == "" {
			zap.L().Debug("sitelist: skipping row without url", zap.Int("row", i+2))
			continue
		}
		if site.Message == "" {
			site.Message = opts.DefaultMessage
		}
		if site.BusinessContext == "" {
			site.BusinessContext = opts.DefaultContext
		}
		if site.Message == "" {
			return nil, eris.Errorf("sitelist: row %d has no message and no default was given", i+2)
		}
		sites = append(sites, site)
	}
	return sites, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		h = strings.ReplaceAll(h, " ", "_")
		for key, aliases := range columns {
			if _, taken := idx[key]; taken {
				continue
			}
			for _, a := range aliases {
				if h == a {
					idx[key] = i
				}
			}
		}
	}
	return idx
}

func cell(row []string, idx map[string]int, key string) string {
	i, ok := idx[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeURL adds an https scheme to bare domains.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}

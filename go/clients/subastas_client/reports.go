package subastas_client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"time"
)

// Report names a spreadsheet export served by the backend.
type Report string

const (
	ReportAuctions Report = "excel"
	ReportClients  Report = "clientes_excel"
	ReportPacking  Report = "packing_excel"
)

// ReportParams filters a report by date range. Zero values are omitted.
type ReportParams struct {
	From time.Time
	To   time.Time
}

func (p ReportParams) query() string {
	values := url.Values{}
	if !p.From.IsZero() {
		values.Set("fecha_inicio", p.From.Format(dateParamLayout))
	}
	if !p.To.IsZero() {
		values.Set("fecha_fin", p.To.Format(dateParamLayout))
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// DownloadReport streams the report file into w and returns the file name
// suggested by the backend, if any.
func (c *SubastasClient) DownloadReport(ctx context.Context, report Report, params ReportParams, w io.Writer) (string, error) {
	endpoint := reportsPath + string(report) + "/" + params.query()

	header, err := c.Stream(ctx, endpoint, w)
	if err != nil {
		return "", fmt.Errorf("failed to download %s report: %w", report, err)
	}

	_, disposition, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	if err != nil {
		return "", nil
	}
	return disposition["filename"], nil
}

package ssrs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// DataSourceRef binds a report data source to a shared data source over REST.
type DataSourceRef struct {
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	DataSourceID string `json:"DataSourceId"`
}

// SystemInfo returns the server's REST SystemInfo document. Any failure
// yields {"status":"unknown"}.
func (c *Client) SystemInfo(ctx context.Context) map[string]any {
	unknown := map[string]any{"status": "unknown"}

	status, body, err := c.do(ctx, http.MethodGet, c.restURL+"/SystemInfo", "", nil, http.Header{"Accept": {"application/json"}})
	if err != nil || status != http.StatusOK {
		c.logger.Debug("SystemInfo unavailable", zap.Int("status", status), zap.Error(err))
		return unknown
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil || info == nil {
		return unknown
	}
	return info
}

// SetReportDataSources replaces a report's data sources over REST. It tries
// the ID-keyed resource first and then the path-keyed one, and reports
// whether either accepted the update.
func (c *Client) SetReportDataSources(ctx context.Context, id, itemPath string, refs []DataSourceRef) bool {
	payload, err := json.Marshal(map[string]any{"DataSources": refs})
	if err != nil {
		return false
	}

	var candidates []string
	if id != "" {
		candidates = append(candidates, c.restURL+"/Reports("+id+")/DataSources")
	}
	if itemPath != "" {
		candidates = append(candidates, c.restURL+"/Reports(Path='"+escapePath(itemPath)+"')/DataSources")
	}

	for _, endpoint := range candidates {
		status, _, err := c.do(ctx, http.MethodPut, endpoint, "application/json", payload, nil)
		if err == nil && status >= 200 && status < 300 {
			return true
		}
		c.logger.Debug("REST data source update rejected",
			zap.String("url", endpoint),
			zap.Int("status", status),
			zap.Error(err))
	}
	return false
}

// RenderParam is one query-string parameter of a render URL.
type RenderParam struct {
	Name  string
	Value string
}

// RenderURL builds a URL-access link that renders itemPath as PDF:
// <base>?<path>&rs:Command=Render&rs:Format=PDF&name=value...
func RenderURL(base, itemPath string, params []RenderParam) string {
	if !strings.HasPrefix(itemPath, "/") {
		itemPath = "/" + itemPath
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString("?")
	b.WriteString(escapePath(itemPath))
	b.WriteString("&rs:Command=Render&rs:Format=PDF")
	for _, p := range params {
		b.WriteString("&")
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// escapePath percent-encodes each segment of a catalog path, keeping the
// slashes. Spaces become %20.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	}
	return strings.Join(segments, "/")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	"github.com/ekaya-inc/ekaya-reports/pkg/retry"
	"github.com/ekaya-inc/ekaya-reports/pkg/services"
)

const (
	defaultAPIBase      = "http://localhost:8000"
	defaultTitle        = "Sales by Month and Region 2024"
	defaultPrompt       = "total sales by month and region for 2024, line chart, filter region in (West, South)"
	defaultFolder       = "/AutoReports"
	defaultSharedDS     = "/_Shared/MainDS"
	defaultPreviewLimit = 10
	defaultTimeout      = 10 * time.Second
)

type SmokeCmd struct{}

func NewSmokeCmd() *SmokeCmd {
	return &SmokeCmd{}
}

func (c *SmokeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the report builder flow end to end against a running API",
		Long: `Calls customerDatabases, inferFromNaturalLanguage, generateSQL, preview
and publishReport in order. Exits 0 on success, 1 on failure and 2 when the
inferred mapping is empty. A publish rejected because the report server is
unavailable is reported as a warning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := smokeConfigFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return newSmokeRunner(cfg, cmd.OutOrStdout()).Run(ctx)
		},
	}

	cmd.Flags().String("api-base", envOr("API_BASE", defaultAPIBase), "report API base URL")
	cmd.Flags().String("title", envOr("TEST_REPORT_TITLE", defaultTitle), "report title")
	cmd.Flags().String("prompt", envOr("TEST_PROMPT", defaultPrompt), "natural-language report request")
	cmd.Flags().String("folder", envOr("TEST_FOLDER", defaultFolder), "report server folder")
	cmd.Flags().String("shared-ds-path", envOr("TEST_SHARED_DS_PATH", defaultSharedDS), "shared data source path")
	cmd.Flags().Int("preview-limit", envIntOr("TEST_PREVIEW_LIMIT", defaultPreviewLimit), "preview row limit")
	cmd.Flags().Duration("timeout", defaultTimeout, "per-request timeout")
	return cmd
}

func smokeConfigFromFlags(cmd *cobra.Command) (smokeConfig, error) {
	var cfg smokeConfig
	var err error
	if cfg.APIBase, err = cmd.Flags().GetString("api-base"); err != nil {
		return cfg, fmt.Errorf("failed to get api-base flag: %w", err)
	}
	if cfg.Title, err = cmd.Flags().GetString("title"); err != nil {
		return cfg, fmt.Errorf("failed to get title flag: %w", err)
	}
	if cfg.Prompt, err = cmd.Flags().GetString("prompt"); err != nil {
		return cfg, fmt.Errorf("failed to get prompt flag: %w", err)
	}
	if cfg.Folder, err = cmd.Flags().GetString("folder"); err != nil {
		return cfg, fmt.Errorf("failed to get folder flag: %w", err)
	}
	if cfg.SharedDSPath, err = cmd.Flags().GetString("shared-ds-path"); err != nil {
		return cfg, fmt.Errorf("failed to get shared-ds-path flag: %w", err)
	}
	if cfg.PreviewLimit, err = cmd.Flags().GetInt("preview-limit"); err != nil {
		return cfg, fmt.Errorf("failed to get preview-limit flag: %w", err)
	}
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return cfg, fmt.Errorf("failed to get timeout flag: %w", err)
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

type smokeConfig struct {
	APIBase      string
	Title        string
	Prompt       string
	Folder       string
	SharedDSPath string
	PreviewLimit int
	Timeout      time.Duration
}

// softFailure ends the run with exitCodeWarning.
type softFailure struct{ msg string }

func (e *softFailure) Error() string { return e.msg }

// publishSkipped marks a publish the report server could not take. The step
// still counts as passed.
type publishSkipped struct{ msg string }

func (e *publishSkipped) Error() string { return e.msg }

// apiError is a non-200 answer from the report API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, strings.TrimSpace(e.Body))
}

func (e *apiError) IsRetryable() bool { return true }

type stepResult struct {
	Name     string
	Passed   bool
	Message  string
	Duration time.Duration
}

type smokeRunner struct {
	cfg    smokeConfig
	client *http.Client
	out    io.Writer
	retry  *retry.Config

	db        string
	spec      json.RawMessage
	mapping   []models.Mapping
	sqlText   string
	params    []services.SQLParam
	columns   []models.ColumnDef
	renderURL string

	results []stepResult
	warning string
}

func newSmokeRunner(cfg smokeConfig, out io.Writer) *smokeRunner {
	return &smokeRunner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		out:    out,
		retry: &retry.Config{
			MaxRetries:   1,
			InitialDelay: time.Second,
			MaxDelay:     time.Second,
			Multiplier:   1,
		},
	}
}

// Run executes every step in order and stops at the first failure. The
// summary table is printed in every case.
func (r *smokeRunner) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"customerDatabases", r.customerDatabases},
		{"inferFromNaturalLanguage", r.infer},
		{"generateSQL", r.generateSQL},
		{"preview", r.preview},
		{"publishReport", r.publish},
	}

	for _, step := range steps {
		start := time.Now()
		err := step.fn(ctx)
		result := stepResult{Name: step.name, Passed: true, Message: "ok", Duration: time.Since(start)}

		var soft *softFailure
		var skipped *publishSkipped
		switch {
		case err == nil:
		case errors.As(err, &skipped):
			result.Message = skipped.msg
			r.warning = skipped.msg
		case errors.As(err, &soft):
			result.Passed, result.Message = false, soft.msg
			r.results = append(r.results, result)
			r.printSummary()
			return &exitError{code: exitCodeWarning, err: err}
		default:
			result.Passed, result.Message = false, err.Error()
			r.results = append(r.results, result)
			r.printSummary()
			return &exitError{code: exitCodeError, err: fmt.Errorf("%s failed: %w", step.name, err)}
		}
		r.results = append(r.results, result)
	}

	r.printSummary()
	return nil
}

func (r *smokeRunner) customerDatabases(ctx context.Context) error {
	var body struct {
		Databases []struct {
			Name string `json:"name"`
		} `json:"databases"`
	}
	err := retry.DoIfRetryable(ctx, r.retry, func() error {
		return r.call(ctx, http.MethodGet, "/report/customerDatabases", nil, &body)
	})
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}
	if len(body.Databases) == 0 || body.Databases[0].Name == "" {
		return errors.New("no databases returned from /report/customerDatabases")
	}
	r.db = body.Databases[0].Name
	return nil
}

func (r *smokeRunner) infer(ctx context.Context) error {
	payload := map[string]string{
		"db":    r.db,
		"title": r.cfg.Title,
		"text":  r.cfg.Prompt,
	}
	var body map[string]json.RawMessage
	if err := r.call(ctx, http.MethodPost, "/report/inferFromNaturalLanguage", payload, &body); err != nil {
		return fmt.Errorf("infer failed: %w", err)
	}

	var missing []string
	for _, key := range []string{"spec", "suggestedMapping", "availableColumns", "schemaInsights"} {
		if _, ok := body[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("infer response missing keys: %s", strings.Join(missing, ", "))
	}

	var suggested []models.SuggestedMappingItem
	if err := json.Unmarshal(body["suggestedMapping"], &suggested); err != nil {
		return fmt.Errorf("infer suggestedMapping: %w", err)
	}
	var columns []models.ColumnMetadata
	if err := json.Unmarshal(body["availableColumns"], &columns); err != nil {
		return fmt.Errorf("infer availableColumns: %w", err)
	}

	r.spec = body["spec"]
	r.mapping = normalizeMapping(suggested, columns)
	if len(r.mapping) == 0 {
		return &softFailure{msg: "unable to derive mapping from infer output; adjust prompt or data"}
	}
	return nil
}

func (r *smokeRunner) generateSQL(ctx context.Context) error {
	payload := struct {
		DB      string           `json:"db"`
		Mapping []models.Mapping `json:"mapping"`
		Spec    json.RawMessage  `json:"spec"`
	}{r.db, r.mapping, r.spec}

	var body struct {
		SQL     string             `json:"sql"`
		Params  json.RawMessage    `json:"params"`
		Columns []models.ColumnDef `json:"columns"`
	}
	if err := r.call(ctx, http.MethodPost, "/report/generateSQL", payload, &body); err != nil {
		return fmt.Errorf("generateSQL failed: %w", err)
	}
	if strings.TrimSpace(body.SQL) == "" {
		return errors.New("generateSQL returned empty SQL")
	}
	if len(body.Columns) == 0 {
		return errors.New("generateSQL returned no columns")
	}
	if !isJSONArray(body.Params) {
		return errors.New("generateSQL params is not a list")
	}
	var params []services.SQLParam
	if err := json.Unmarshal(body.Params, &params); err != nil {
		return fmt.Errorf("generateSQL params: %w", err)
	}

	r.sqlText, r.columns, r.params = body.SQL, body.Columns, params
	return nil
}

func (r *smokeRunner) preview(ctx context.Context) error {
	params := make(map[string]any, len(r.params))
	for _, p := range r.params {
		if p.Name == "" {
			continue
		}
		if p.Value == nil {
			params[p.Name] = ""
			continue
		}
		params[p.Name] = p.Value
	}
	payload := services.PreviewRequest{DB: r.db, SQL: r.sqlText, Params: params, Limit: r.cfg.PreviewLimit}

	var body struct {
		Rows     []json.RawMessage `json:"rows"`
		RowCount *int              `json:"row_count"`
	}
	if err := r.call(ctx, http.MethodPost, "/report/preview", payload, &body); err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	if body.Rows == nil {
		return errors.New("preview rows is not a list")
	}
	if body.RowCount == nil {
		return errors.New("preview row_count is not an int")
	}
	if *body.RowCount > r.cfg.PreviewLimit {
		return fmt.Errorf("preview returned %d rows, more than the requested limit of %d", *body.RowCount, r.cfg.PreviewLimit)
	}
	return nil
}

func (r *smokeRunner) publish(ctx context.Context) error {
	columns := buildPublishColumns(r.columns)
	parameters := buildPublishParameters(r.params)
	req := models.PublishRequest{
		DB: models.DBRef{Name: r.db},
		Report: models.ReportTarget{
			Title:                r.cfg.Title,
			Folder:               r.cfg.Folder,
			SharedDataSourcePath: r.cfg.SharedDSPath,
		},
		Mapping:    r.mapping,
		Columns:    columns,
		Parameters: parameters,
		Filters:    buildPublishFilters(parameters, columns),
		Sort:       buildPublishSort(columns),
		Chart:      buildPublishChart(columns),
	}

	var body struct {
		RenderURLPDF string `json:"render_url_pdf"`
	}
	err := r.call(ctx, http.MethodPost, "/report/publishReport", req, &body)
	if err == nil {
		r.renderURL = body.RenderURLPDF
		fmt.Fprintf(r.out, "Publish succeeded. Render URL: %s\n", body.RenderURLPDF)
		return nil
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) && reportServerUnavailable(apiErr) {
		return &publishSkipped{msg: "publish skipped: " + errorMessage(apiErr.Body)}
	}
	return fmt.Errorf("publish failed: %w", err)
}

// call sends payload as JSON and decodes a 200 answer into out.
func (r *smokeRunner) call(ctx context.Context, method, path string, payload, out any) error {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.APIBase+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("non-JSON response: %d %s", resp.StatusCode, string(data))
	}
	return nil
}

func (r *smokeRunner) printSummary() {
	if len(r.results) == 0 {
		return
	}
	fmt.Fprintln(r.out, "\nSmoke Summary:")
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Step", "Status", "Duration", "Message"})
	table.SetAutoWrapText(false)
	for _, res := range r.results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		table.Append([]string{res.Name, status, fmt.Sprintf("%.2fs", res.Duration.Seconds()), res.Message})
	}
	table.Render()
	if r.warning != "" {
		fmt.Fprintf(r.out, "WARNING: %s\n", r.warning)
	}
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func decodeErrorBody(body string) apiErrorBody {
	var parsed apiErrorBody
	_ = json.Unmarshal([]byte(body), &parsed)
	return parsed
}

func errorMessage(body string) string {
	if msg := decodeErrorBody(body).Error.Message; msg != "" {
		return msg
	}
	return strings.TrimSpace(body)
}

func reportServerUnavailable(err *apiError) bool {
	if err.Status != http.StatusBadRequest && err.Status != http.StatusBadGateway {
		return false
	}
	parsed := decodeErrorBody(err.Body)
	if parsed.Error.Code == "ssrs_upload_failed" {
		return true
	}
	msg := strings.ToLower(parsed.Error.Message)
	return strings.Contains(msg, "ssrs") || strings.Contains(msg, "report server")
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// normalizeMapping keeps the suggestions whose column exists in the catalog.
func normalizeMapping(suggested []models.SuggestedMappingItem, columns []models.ColumnMetadata) []models.Mapping {
	known := make(map[string]bool, len(columns)*3)
	for _, c := range columns {
		for _, name := range []string{c.Name, c.BracketedName, c.Column} {
			if name != "" {
				known[name] = true
			}
		}
	}

	var mapping []models.Mapping
	for _, item := range suggested {
		if item.Column == "" || !known[item.Column] {
			continue
		}
		m := models.Mapping{
			Term:   item.Term,
			Column: item.Column,
			Role:   item.Role,
			Grain:  item.Grain,
		}
		if m.Term == "" {
			m.Term = lastNamePart(item.Column)
		}
		if m.Role == "" {
			m.Role = inferRole(item.Column)
		}
		mapping = append(mapping, m)
	}
	return mapping
}

func lastNamePart(column string) string {
	parts := strings.Split(column, ".")
	return strings.Trim(parts[len(parts)-1], "[]")
}

func inferRole(column string) string {
	lower := strings.ToLower(column)
	switch {
	case containsAny(lower, "date", "time"):
		return models.RoleTime
	case containsAny(lower, "amount", "sales", "revenue", "count", "qty"):
		return models.RoleMeasure
	default:
		return models.RoleDimension
	}
}

func inferRDLType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "date", "time"):
		return models.ParamTypeDateTime
	case containsAny(lower, "amt", "amount", "sales", "revenue", "price", "qty", "count"):
		return models.ParamTypeFloat
	default:
		return models.ParamTypeString
	}
}

func containsAny(s string, tokens ...string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func buildPublishColumns(columns []models.ColumnDef) []models.ColumnDef {
	result := make([]models.ColumnDef, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			c.Name = fmt.Sprintf("Field%d", i)
		}
		if c.Source == "" {
			c.Source = c.Name
		}
		if c.RDLType == "" {
			c.RDLType = inferRDLType(c.Name)
		}
		if c.Role == "" {
			c.Role = inferRole(c.Name)
		}
		if c.DisplayName == "" {
			c.DisplayName = c.Name
		}
		if c.Include == nil {
			include := true
			c.Include = &include
		}
		if c.Format == "" {
			c.Format = "None"
		}
		result[i] = c
	}
	return result
}

func buildPublishParameters(params []services.SQLParam) []models.ParamDef {
	var result []models.ParamDef
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		rdlType := p.RDLType
		if rdlType == "" {
			rdlType = inferRDLType(p.Name)
		}
		result = append(result, models.ParamDef{
			Name:    strings.TrimPrefix(p.Name, "@"),
			RDLType: rdlType,
			Default: p.Value,
		})
	}
	return result
}

// buildPublishFilters binds every parameter to the time column, or to the
// first column when there is none.
func buildPublishFilters(params []models.ParamDef, columns []models.ColumnDef) []models.FilterDef {
	if len(params) == 0 || len(columns) == 0 {
		return nil
	}
	target := columns[0]
	if c, ok := firstWithRole(columns, models.RoleTime); ok {
		target = c
	}
	filters := make([]models.FilterDef, len(params))
	for i, p := range params {
		filters[i] = models.FilterDef{Field: target.Source, Op: ">=", Param: p.Name}
	}
	return filters
}

func buildPublishSort(columns []models.ColumnDef) []models.SortDef {
	for _, c := range columns {
		if c.Role == models.RoleTime || c.Role == models.RoleDimension {
			return []models.SortDef{{Field: c.Name, Dir: "asc"}}
		}
	}
	return nil
}

func buildPublishChart(columns []models.ColumnDef) *models.ChartSpec {
	timeCol, ok := firstWithRole(columns, models.RoleTime)
	if !ok {
		return nil
	}
	measure, ok := firstWithRole(columns, models.RoleMeasure)
	if !ok {
		measure, ok = firstWithRole(columns, models.RoleMetric)
	}
	if !ok {
		return nil
	}
	return &models.ChartSpec{
		Type:     "line",
		Category: timeCol.Name,
		Series:   []string{measure.Name},
		Values:   []string{measure.Name},
	}
}

func firstWithRole(columns []models.ColumnDef, role string) (models.ColumnDef, bool) {
	for _, c := range columns {
		if c.Role == role {
			return c, true
		}
	}
	return models.ColumnDef{}, false
}

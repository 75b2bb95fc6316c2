package ssrs

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/retry"
)

const (
	reportServiceNS = "http://schemas.microsoft.com/sqlserver/reporting/2010/03/01/ReportServer"
	soapEnvelopeNS  = "http://schemas.xmlsoap.org/soap/envelope/"
	xsiNS           = "http://www.w3.org/2001/XMLSchema-instance"
)

// CatalogItem identifies an item created on the report server.
type CatalogItem struct {
	ID       string `xml:"ID"`
	Name     string `xml:"Name"`
	Path     string `xml:"Path"`
	TypeName string `xml:"TypeName"`
}

// FaultError is a SOAP fault returned by the report server.
type FaultError struct {
	Code      string
	Message   string
	ErrorCode string // rs* code from the fault detail, if any
}

func (e *FaultError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("soap fault %s (%s): %s", e.Code, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("soap fault %s: %s", e.Code, e.Message)
}

// IsRetryable is false: faults are raised by the service after it parsed the call.
func (e *FaultError) IsRetryable() bool { return false }

type requestEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	XSINS   string   `xml:"xmlns:xsi,attr"`
	Body    struct {
		Content any
	} `xml:"soap:Body"`
}

type responseEnvelope struct {
	Body struct {
		Fault *soapFault `xml:"Fault"`
		Inner []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		ErrorCode string `xml:"ErrorCode"`
	} `xml:"detail"`
}

type createCatalogItemRequest struct {
	XMLName    xml.Name `xml:"CreateCatalogItem"`
	NS         string   `xml:"xmlns,attr"`
	ItemType   string   `xml:"ItemType"`
	Name       string   `xml:"Name"`
	Parent     string   `xml:"Parent"`
	Overwrite  bool     `xml:"Overwrite"`
	Definition string   `xml:"Definition"`
	Properties struct{} `xml:"Properties"`
}

type createCatalogItemResponse struct {
	ItemInfo CatalogItem `xml:"ItemInfo"`
}

type dataSourceReference struct {
	Type      string `xml:"xsi:type,attr"`
	Reference string `xml:"Reference"`
}

type itemDataSource struct {
	Name string              `xml:"Name"`
	Item dataSourceReference `xml:"Item"`
}

type setItemDataSourcesRequest struct {
	XMLName     xml.Name         `xml:"SetItemDataSources"`
	NS          string           `xml:"xmlns,attr"`
	ItemPath    string           `xml:"ItemPath"`
	DataSources []itemDataSource `xml:"DataSources>DataSource"`
}

// CreateCatalogItem uploads a report definition into folder, overwriting an
// existing report of the same name.
func (c *Client) CreateCatalogItem(ctx context.Context, folder, name string, definition []byte) (*CatalogItem, error) {
	req := createCatalogItemRequest{
		NS:         reportServiceNS,
		ItemType:   "Report",
		Name:       name,
		Parent:     folder,
		Overwrite:  true,
		Definition: base64.StdEncoding.EncodeToString(definition),
	}

	var resp createCatalogItemResponse
	if err := c.call(ctx, "CreateCatalogItem", req, &resp); err != nil {
		return nil, err
	}
	if resp.ItemInfo.Path == "" {
		resp.ItemInfo.Path = strings.TrimRight(folder, "/") + "/" + name
	}

	c.logger.Info("Uploaded report definition",
		zap.String("path", resp.ItemInfo.Path),
		zap.String("id", resp.ItemInfo.ID))
	return &resp.ItemInfo, nil
}

// SetItemDataSources binds the report's data source name to a shared data source.
func (c *Client) SetItemDataSources(ctx context.Context, itemPath, dataSourceName, reference string) error {
	req := setItemDataSourcesRequest{
		NS:       reportServiceNS,
		ItemPath: itemPath,
		DataSources: []itemDataSource{{
			Name: dataSourceName,
			Item: dataSourceReference{Type: "DataSourceReference", Reference: reference},
		}},
	}
	if err := c.call(ctx, "SetItemDataSources", req, nil); err != nil {
		return err
	}
	c.logger.Debug("Bound shared data source",
		zap.String("path", itemPath),
		zap.String("reference", reference))
	return nil
}

// call posts one SOAP operation, retrying transient failures, and decodes the
// body content into out when out is non-nil.
func (c *Client) call(ctx context.Context, action string, content, out any) error {
	env := requestEnvelope{SoapNS: soapEnvelopeNS, XSINS: xsiNS}
	env.Body.Content = content
	payload, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", action, err)
	}
	payload = append([]byte(xml.Header), payload...)

	header := http.Header{}
	header.Set("SOAPAction", `"`+reportServiceNS+"/"+action+`"`)

	var inner []byte
	err = retry.DoIfRetryable(ctx, c.retry, func() error {
		status, body, err := c.do(ctx, http.MethodPost, c.soapURL, "text/xml; charset=utf-8", payload, header)
		if err != nil {
			return err
		}

		var env responseEnvelope
		if xmlErr := xml.Unmarshal(body, &env); xmlErr == nil && env.Body.Fault != nil {
			f := env.Body.Fault
			return &FaultError{Code: f.Code, Message: strings.TrimSpace(f.String), ErrorCode: f.Detail.ErrorCode}
		} else if status < 200 || status >= 300 {
			return &HTTPError{StatusCode: status, Body: truncate(string(body), 500)}
		} else if xmlErr != nil {
			return fmt.Errorf("failed to parse %s response: %w", action, xmlErr)
		}
		inner = env.Body.Inner
		return nil
	})
	if err != nil {
		c.logger.Error("SOAP call failed", zap.String("action", action), zap.Error(err))
		return fmt.Errorf("%s: %w", action, err)
	}

	if out != nil {
		if err := xml.Unmarshal(inner, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", action, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wunderling/tutorledger/internal/config"
	"github.com/wunderling/tutorledger/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	productionBaseURL = "https://quickbooks.api.intuit.com"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Tokens domain.TokenStore
}

// Client talks to the QBO-compatible accounting API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	tokens  domain.TokenStore
}

func New(p Params) domain.Client {
	base := strings.TrimRight(p.Config.Ledger.BaseURL, "/")
	if base == "" {
		base = sandboxBaseURL
		if p.Config.Ledger.Environment == "production" {
			base = productionBaseURL
		}
	}

	timeout := time.Duration(p.Config.Ledger.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		log:     p.Log.Named("ledger.client"),
		tokens:  p.Tokens,
	}
}

// Call performs one authenticated JSON request. Remote rejections come
// back as *domain.Fault, connectivity problems as *domain.TransportError.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.Current(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v3/company/%s/%s", c.baseURL, url.PathEscape(token.RealmID), strings.TrimLeft(path, "/"))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode ledger request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return &domain.TransportError{
			Op:  method + " " + path,
			Err: fmt.Errorf("remote status %d", resp.StatusCode),
		}
	}

	if fault := parseFault(raw); fault != nil {
		return fault
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &domain.Fault{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: strings.TrimSpace(string(raw)),
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode ledger response: %w", err)
		}
	}

	return nil
}

// FindCustomer searches by exact display name.
func (c *Client) FindCustomer(ctx context.Context, displayName string) (*domain.Customer, error) {
	// Single quotes double per the remote query grammar.
	escaped := strings.ReplaceAll(displayName, "'", "''")
	query := fmt.Sprintf("select * from Customer where DisplayName = '%s'", escaped)

	var result struct {
		QueryResponse struct {
			Customer []domain.Customer `json:"Customer"`
		} `json:"QueryResponse"`
	}
	if err := c.Call(ctx, http.MethodGet, "query?query="+url.QueryEscape(query), nil, &result); err != nil {
		return nil, err
	}

	if len(result.QueryResponse.Customer) == 0 {
		return nil, nil
	}
	return &result.QueryResponse.Customer[0], nil
}

type invoiceLinePayload struct {
	Description         string                     `json:"Description"`
	Amount              float64                    `json:"Amount"`
	DetailType          string                     `json:"DetailType"`
	SalesItemLineDetail salesItemLineDetailPayload `json:"SalesItemLineDetail"`
}

type salesItemLineDetailPayload struct {
	ItemRef   refPayload `json:"ItemRef"`
	Qty       float64    `json:"Qty"`
	UnitPrice float64    `json:"UnitPrice"`
}

type refPayload struct {
	Value string `json:"value"`
}

// CreateInvoice posts one invoice document covering every line of one
// customer group.
func (c *Client) CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (domain.InvoiceResponse, error) {
	lines := make([]invoiceLinePayload, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, invoiceLinePayload{
			Description: line.Description,
			Amount:      line.Amount,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: salesItemLineDetailPayload{
				ItemRef:   refPayload{Value: line.ItemRef},
				Qty:       line.Quantity,
				UnitPrice: line.UnitPrice,
			},
		})
	}

	payload := map[string]any{
		"CustomerRef": refPayload{Value: req.CustomerID},
		"TxnDate":     req.TxnDate.Format("2006-01-02"),
		"Line":        lines,
	}

	var result struct {
		Invoice struct {
			ID        string `json:"Id"`
			DocNumber string `json:"DocNumber"`
		} `json:"Invoice"`
	}
	if err := c.Call(ctx, http.MethodPost, "invoice", payload, &result); err != nil {
		return domain.InvoiceResponse{}, err
	}

	if result.Invoice.ID == "" {
		return domain.InvoiceResponse{}, &domain.Fault{
			Code:    "missing_invoice_id",
			Message: "response carried no invoice identity",
		}
	}

	return domain.InvoiceResponse{
		InvoiceID: result.Invoice.ID,
		DocNumber: result.Invoice.DocNumber,
	}, nil
}

type faultPayload struct {
	Fault struct {
		Error []struct {
			Code    string `json:"code"`
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
		} `json:"Error"`
	} `json:"Fault"`
}

func parseFault(raw []byte) *domain.Fault {
	var f faultPayload
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	if len(f.Fault.Error) == 0 {
		return nil
	}
	first := f.Fault.Error[0]
	return &domain.Fault{
		Code:    first.Code,
		Message: first.Message,
		Detail:  first.Detail,
	}
}

var _ domain.Client = (*Client)(nil)

package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seera-lab/api/internal/platform/textutil"
)

const (
	defaultTapBaseURL = "https://api.tap.company/v2"

	walletSourceID   = "src_sa.stcpay"
	phoneCountryCode = "966"
)

// TapLogger defines the logging contract for Tap provider operations.
type TapLogger func(ctx context.Context, event string, fields map[string]any)

// TapProviderConfig configures the TapProvider.
type TapProviderConfig struct {
	SecretKey   string
	BaseURL     string
	WebhookURL  string
	RedirectURL string
	HTTPClient  *http.Client
	Logger      TapLogger
}

// TapProvider implements the Provider interface against the Tap charges API.
// The wallet flow is two legged: creating a charge with the stc pay source
// triggers an OTP to the customer's wallet, and a follow-up update with the
// code captures the funds.
type TapProvider struct {
	secretKey   string
	baseURL     string
	webhookURL  string
	redirectURL string
	httpClient  *http.Client
	logger      TapLogger
}

var _ Provider = (*TapProvider)(nil)

// NewTapProvider constructs a Tap Provider using the given configuration.
func NewTapProvider(cfg TapProviderConfig) (*TapProvider, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errors.New("tap: secret key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultTapBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &TapProvider{
		secretKey:   secretKey,
		baseURL:     baseURL,
		webhookURL:  strings.TrimSpace(cfg.WebhookURL),
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

type tapPhone struct {
	CountryCode string `json:"country_code"`
	Number      string `json:"number"`
}

type tapChargeRequest struct {
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	CustomerInitiated bool              `json:"customer_initiated"`
	ThreeDSecure      bool              `json:"threeDSecure"`
	SaveCard          bool              `json:"save_card"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Reference         struct {
		Transaction string `json:"transaction,omitempty"`
		Order       string `json:"order,omitempty"`
	} `json:"reference"`
	Receipt struct {
		Email bool `json:"email"`
		SMS   bool `json:"sms"`
	} `json:"receipt"`
	Customer struct {
		FirstName string   `json:"first_name"`
		LastName  string   `json:"last_name"`
		Email     string   `json:"email"`
		Phone     tapPhone `json:"phone"`
	} `json:"customer"`
	Source struct {
		ID    string    `json:"id"`
		Phone *tapPhone `json:"phone,omitempty"`
	} `json:"source"`
	Post *struct {
		URL string `json:"url"`
	} `json:"post,omitempty"`
	Redirect *struct {
		URL string `json:"url"`
	} `json:"redirect,omitempty"`
}

type tapOTPUpdate struct {
	GatewayResponse struct {
		Name     string `json:"name"`
		Response struct {
			Reference struct {
				OTP string `json:"otp"`
			} `json:"reference"`
		} `json:"response"`
	} `json:"gateway_response"`
}

type tapChargeResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Metadata struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

type tapErrorResponse struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// CreateCharge opens a wallet charge, which causes the gateway to send the OTP.
func (p *TapProvider) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if p == nil {
		return Charge{}, errors.New("tap: provider is nil")
	}
	if req.Amount <= 0 {
		return Charge{}, errors.New("tap: amount must be positive")
	}
	walletPhone := normaliseWalletPhone(req.WalletPhone)
	if walletPhone == "" {
		return Charge{}, errors.New("tap: wallet phone is required")
	}

	firstName, lastName := splitName(req.Customer.Name)

	body := tapChargeRequest{
		Amount:            req.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		CustomerInitiated: true,
		ThreeDSecure:      true,
		Description:       req.Description,
		Metadata:          textutil.NormalizeStringMap(req.Metadata),
	}
	body.Reference.Transaction = "txn_" + req.OrderID
	body.Reference.Order = req.OrderID
	body.Receipt.Email = true
	body.Receipt.SMS = true
	body.Customer.FirstName = firstName
	body.Customer.LastName = lastName
	body.Customer.Email = strings.TrimSpace(req.Customer.Email)
	body.Customer.Phone = tapPhone{CountryCode: phoneCountryCode, Number: normaliseWalletPhone(req.Customer.Phone)}
	body.Source.ID = walletSourceID
	body.Source.Phone = &tapPhone{CountryCode: phoneCountryCode, Number: walletPhone}
	if p.webhookURL != "" {
		body.Post = &struct {
			URL string `json:"url"`
		}{URL: p.webhookURL}
	}
	if p.redirectURL != "" {
		body.Redirect = &struct {
			URL string `json:"url"`
		}{URL: p.redirectURL + "?order_id=" + req.OrderID}
	}

	var resp tapChargeResponse
	raw, err := p.do(ctx, http.MethodPost, "/charges/", body, &resp)
	if err != nil {
		return Charge{}, err
	}

	p.logger(ctx, "tap.charge.created", map[string]any{
		"charge": resp.ID,
		"order":  req.OrderID,
		"status": resp.Status,
	})

	return chargeFromResponse(resp, raw), nil
}

// VerifyOTP forwards the customer supplied code to the gateway. A wrong code
// comes back as a non-captured status, not a transport error.
func (p *TapProvider) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (Charge, error) {
	if p == nil {
		return Charge{}, errors.New("tap: provider is nil")
	}
	chargeID := strings.TrimSpace(req.ChargeID)
	if chargeID == "" {
		return Charge{}, errors.New("tap: charge id is required")
	}

	var body tapOTPUpdate
	body.GatewayResponse.Name = "STC_PAY"
	body.GatewayResponse.Response.Reference.OTP = strings.TrimSpace(req.OTP)

	var resp tapChargeResponse
	raw, err := p.do(ctx, http.MethodPut, "/charges/"+chargeID, body, &resp)
	if err != nil {
		return Charge{}, err
	}

	p.logger(ctx, "tap.charge.otp_verified", map[string]any{
		"charge": resp.ID,
		"status": resp.Status,
	})

	return chargeFromResponse(resp, raw), nil
}

// LookupCharge fetches the current charge state for reconciliation.
func (p *TapProvider) LookupCharge(ctx context.Context, chargeID string) (Charge, error) {
	if p == nil {
		return Charge{}, errors.New("tap: provider is nil")
	}
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return Charge{}, errors.New("tap: charge id is required")
	}

	var resp tapChargeResponse
	raw, err := p.do(ctx, http.MethodGet, "/charges/"+chargeID, nil, &resp)
	if err != nil {
		return Charge{}, err
	}

	return chargeFromResponse(resp, raw), nil
}

func (p *TapProvider) do(ctx context.Context, method, path string, payload any, out *tapChargeResponse) (map[string]any, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("tap: encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("tap: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tap: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("tap: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var tapErr tapErrorResponse
		if err := json.Unmarshal(data, &tapErr); err == nil && len(tapErr.Errors) > 0 {
			return nil, fmt.Errorf("tap: %s %s: %s (%s)", method, path, tapErr.Errors[0].Description, tapErr.Errors[0].Code)
		}
		return nil, fmt.Errorf("tap: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("tap: decode response: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		raw = nil
	}
	return raw, nil
}

func chargeFromResponse(resp tapChargeResponse, raw map[string]any) Charge {
	return Charge{
		ID:       resp.ID,
		OrderID:  resp.Metadata.OrderID,
		Status:   Status(strings.ToUpper(strings.TrimSpace(resp.Status))),
		Amount:   int64(resp.Amount),
		Currency: strings.ToUpper(resp.Currency),
		Raw:      raw,
	}
}

// normaliseWalletPhone strips a single leading zero, matching the local
// number format the gateway expects alongside the country code.
func normaliseWalletPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+"+phoneCountryCode)
	if strings.HasPrefix(phone, phoneCountryCode) && len(phone) > len(phoneCountryCode) {
		phone = phone[len(phoneCountryCode):]
	}
	if strings.HasPrefix(phone, "0") {
		phone = phone[1:]
	}
	return phone
}

func splitName(name string) (string, string) {
	fields := strings.Fields(strings.TrimSpace(name))
	switch len(fields) {
	case 0:
		return "Customer", "Customer"
	case 1:
		return fields[0], fields[0]
	default:
		return fields[0], fields[len(fields)-1]
	}
}

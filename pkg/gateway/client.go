package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/oakline/marketplace-backend/pkg/config"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired   = errors.New("gateway access token is required")
	errWebhookSecretRequired = errors.New("gateway webhook secret is required")
	errInvalidGatewayEnv     = fmt.Errorf("gateway environment must be %q or %q", sandboxEnv, productionEnv)
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// AuthorizeResult is the reference handed back after a delayed-capture
// payment has been created.
type AuthorizeResult struct {
	GatewayRef string
}

// CaptureResult reports the settled amount and the provider transaction id.
type CaptureResult struct {
	Amount        decimal.Decimal
	TransactionID string
}

// Client adapts the Square payments API to the two calls checkout needs:
// authorize (create without autocomplete) and capture (complete).
type Client struct {
	sdk           *sqclient.Client
	environment   string
	locationID    string
	currency      string
	webhookSecret string
	logger        *logger.Logger
}

// NewClient initializes the gateway wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Env)
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:           sdk,
		environment:   env,
		locationID:    strings.TrimSpace(cfg.LocationID),
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		webhookSecret: webhookSecret,
		logger:        logg,
	}
	if logg != nil {
		logg.Info(ctx, "payment gateway client initialized")
	}
	return c, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Authorize creates a delayed-capture payment for the amount and returns the
// gateway reference used later by Capture.
func (c *Client) Authorize(ctx context.Context, amount decimal.Decimal, sourceID, reference string) (*AuthorizeResult, error) {
	autocomplete := false
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: "authorize-" + uuid.NewString(),
		SourceID:       sourceID,
		AmountMoney:    c.money(amount),
		Autocomplete:   &autocomplete,
	}
	if c.locationID != "" {
		req.LocationID = &c.locationID
	}
	if trimmed := strings.TrimSpace(reference); trimmed != "" {
		req.ReferenceID = &trimmed
	}

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		return nil, c.mapError(ctx, err, "authorize payment")
	}
	payment := resp.GetPayment()
	if payment == nil || payment.GetID() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "authorize returned no payment id")
	}
	if c.logger != nil {
		logCtx := c.logger.WithField(ctx, "gateway_ref", *payment.GetID())
		c.logger.Info(logCtx, "payment authorized")
	}
	return &AuthorizeResult{GatewayRef: *payment.GetID()}, nil
}

// Capture completes a previously authorized payment.
func (c *Client) Capture(ctx context.Context, gatewayRef string) (*CaptureResult, error) {
	if strings.TrimSpace(gatewayRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference required")
	}

	resp, err := c.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: gatewayRef})
	if err != nil {
		return nil, c.mapError(ctx, err, "capture payment")
	}
	payment := resp.GetPayment()
	if payment == nil || payment.GetID() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "capture returned no payment")
	}

	amount := decimal.Zero
	if money := payment.GetAmountMoney(); money != nil && money.GetAmount() != nil {
		amount = decimal.New(*money.GetAmount(), -2)
	}
	if c.logger != nil {
		logCtx := c.logger.WithField(ctx, "gateway_ref", gatewayRef)
		c.logger.Info(logCtx, "payment captured")
	}
	return &CaptureResult{
		Amount:        amount,
		TransactionID: *payment.GetID(),
	}, nil
}

func (c *Client) money(amount decimal.Decimal) *sq.Money {
	cents := amount.Shift(2).IntPart()
	currency := sq.Currency(c.currency)
	if c.currency == "" {
		currency = sq.CurrencyUsd
	}
	return &sq.Money{
		Amount:   &cents,
		Currency: &currency,
	}
}

func (c *Client) mapError(ctx context.Context, err error, op string) error {
	if c.logger != nil {
		logCtx := c.logger.WithField(ctx, "operation", op)
		c.logger.Error(logCtx, "gateway call failed", err)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op)
}

func normalizeEnv(value string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(value))
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	case "":
		return sandboxEnv, nil
	default:
		return "", errInvalidGatewayEnv
	}
}

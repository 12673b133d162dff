package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// Fixed slippage tolerance (percent) sent with every quote request.
	quoteSlippage = "5"
	// Fixed integrator fee (percent) taken by the aggregator.
	quoteFee = "3"
	// Integrator fee receiver registered with the aggregator.
	quoteReferrer = "0xe42c136730a9cfefb5514d4d3d06eb27baaf3f08"

	defaultQuoteTimeout = 15 * time.Second
)

// QuoteService requests routing calldata from the swap aggregator. It is a
// plain adapter: any non-2xx response or missing calldata field is a hard
// failure and nothing is retried here; retry policy belongs to the caller.
type QuoteService interface {
	GetSwapCalldata(ctx context.Context, src, dst, amount, recipient string) (string, error)
}

type quoteService struct {
	baseURL   string
	apiKey    string
	forwarder string
	client    *http.Client
}

func NewQuoteService(baseURL, apiKey, forwarderAddress string) QuoteService {
	return &quoteService{
		baseURL:   baseURL,
		apiKey:    apiKey,
		forwarder: forwarderAddress,
		client:    &http.Client{Timeout: defaultQuoteTimeout},
	}
}

type quoteResponse struct {
	Tx struct {
		Data string `json:"data"`
	} `json:"tx"`
}

func (s *quoteService) GetSwapCalldata(ctx context.Context, src, dst, amount, recipient string) (string, error) {
	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", amount)
	params.Set("from", s.forwarder)
	params.Set("origin", recipient)
	params.Set("slippage", quoteSlippage)
	params.Set("disableEstimate", "true")
	params.Set("referrer", quoteReferrer)
	params.Set("fee", quoteFee)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("aggregator returned status %d: %s", resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return "", fmt.Errorf("failed to decode quote response: %w", err)
	}

	if quote.Tx.Data == "" {
		return "", fmt.Errorf("no swap calldata in aggregator response")
	}

	return quote.Tx.Data, nil
}

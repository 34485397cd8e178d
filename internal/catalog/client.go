// Package catalog предоставляет клиент каталога продуктов, отдающего настройки комиссий.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

// ErrNotConfigured возвращается, если адрес каталога не задан.
var ErrNotConfigured = errors.New("catalog client not configured")

// Client инкапсулирует HTTP-взаимодействие с каталогом продуктов.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент каталога по указанному адресу. Временные ошибки и 5xx повторяются.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}

	return &Client{
		baseURL:    base,
		httpClient: rc,
	}
}

// CommissionConfigs запрашивает настройки комиссий продукта. Неизвестный продукт не имеет настроек.
func (c *Client) CommissionConfigs(ctx context.Context, productID string) ([]model.CommissionConfig, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	u := fmt.Sprintf("%s/api/products/%s/commission-configs", c.baseURL, url.PathEscape(productID))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result []model.CommissionConfig
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for i := range result {
		if result[i].Target == "" {
			result[i].Target = model.TargetReferrer
		}
	}

	return result, nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

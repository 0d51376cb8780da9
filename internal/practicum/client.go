// Package practicum talks to the Practicum homework-status API.
package practicum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"homework_bot/internal/homework"
)

const (
	DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

	defaultTimeout = 30 * time.Second
)

// Client is an HTTP client for the homework_statuses endpoint.
type Client struct {
	client   *resty.Client
	endpoint string
}

type Option func(*Client)

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.SetTimeout(d)
		}
	}
}

// New creates a client authorized with the OAuth token.
func New(endpoint, token string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "OAuth "+token)

	c := &Client{client: client, endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Statuses делает запрос к единственному эндпоинту API-сервиса.
// Любой ответ кроме 200 считается ошибкой транспорта; повторов здесь нет.
func (c *Client) Statuses(ctx context.Context, fromDate int64) (homework.Payload, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("from_date", strconv.FormatInt(fromDate, 10)).
		Get(c.endpoint)
	if err != nil {
		return nil, homework.TransportError("Ошибка при запросе к основному API", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, homework.TransportError(
			fmt.Sprintf("Ошибка при запросе к основному API, status_code: %d", resp.StatusCode()), nil)
	}

	var payload homework.Payload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, homework.PayloadError("Ответ API не является JSON-объектом", err)
	}
	if payload == nil {
		return nil, homework.PayloadError("Ответ API не является JSON-объектом", nil)
	}
	return payload, nil
}

// Package bookingapi предоставляет клиент для внешнего сервиса бронирований.
package bookingapi

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

	"github.com/mmeshcher/cleanbook/internal/model"
)

// ErrBookingRejected возвращается, если сервис отклонил бронирование.
var ErrBookingRejected = errors.New("booking rejected by remote service")

// RejectedError содержит ответ сервиса на отклонённое бронирование.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("booking rejected: status %d: %s", e.StatusCode, e.Message)
}

// Is реализует сопоставление с ErrBookingRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrBookingRejected
}

// UserMessage возвращает сообщение сервиса, если оно есть.
func (e *RejectedError) UserMessage() string {
	return e.Message
}

// Client инкапсулирует HTTP-взаимодействие с сервисом бронирований.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewClient создаёт HTTP-клиент для обращения к сервису бронирований по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateBooking отправляет бронирование и возвращает идентификатор, выданный сервисом.
func (c *Client) CreateBooking(ctx context.Context, b model.Booking) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("booking api client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode booking: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/bookings", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", b.ID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var result createResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if result.ID == "" {
			return b.ID, nil
		}
		return result.ID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &RejectedError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	default:
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func readMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		return er.Error
	}
	return strings.TrimSpace(string(data))
}

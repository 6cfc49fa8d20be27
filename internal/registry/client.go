// Пакет registry — HTTP-клиент к внешнему реестру персон.
// По национальному идентификатору возвращает персону и её принадлежности
// к учреждениям. Ошибки разделены на три варианта: персона не найдена,
// реестр недоступен, ответ не разобран.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ошибки реестра.
var (
	// ErrPersonNotFound — персона с таким идентификатором не найдена.
	ErrPersonNotFound = errors.New("персона не найдена в реестре")
	// ErrBadGateway — реестр недоступен или вернул ошибку.
	ErrBadGateway = errors.New("реестр персон недоступен")
	// ErrMalformedResponse — ответ реестра не удалось разобрать.
	ErrMalformedResponse = errors.New("некорректный ответ реестра персон")
)

// maxErrorBody — сколько байт тела ошибки попадает в сообщение.
const maxErrorBody = 512

// Client — HTTP-клиент к реестру персон.
type Client struct {
	baseURL  string // Базовый URL реестра (без trailing slash)
	username string // Basic auth (опционально)
	password string

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент реестра персон.
// username/password — basic auth, пустые значения отключают авторизацию.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию и таймаут).
func New(baseURL, username, password string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "registry_client")),
	}
}

// BaseURL возвращает базовый URL реестра.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get выполняет GET-запрос к реестру.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	return c.httpClient.Do(req)
}

// LookupPerson возвращает персону по национальному идентификатору.
func (c *Client) LookupPerson(ctx context.Context, nationalID string) (*Person, error) {
	path := "/persons?national_id=" + url.QueryEscape(nationalID)

	start := time.Now()
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadGateway, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Запрос к реестру персон",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPersonNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: статус %d: %s", ErrBadGateway, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа: %w", ErrBadGateway, err)
	}
	return decodePerson(body)
}

// decodePerson разбирает тело ответа. Пустое тело или null — персона не найдена.
func decodePerson(body []byte) (*Person, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrPersonNotFound
	}

	var person Person
	if err := json.Unmarshal(trimmed, &person); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if person.ID == "" {
		return nil, fmt.Errorf("%w: отсутствует поле id", ErrMalformedResponse)
	}
	for i, a := range person.Affiliations {
		if a.InstitutionID == "" {
			return nil, fmt.Errorf("%w: принадлежность %d без institution_id", ErrMalformedResponse, i)
		}
	}
	return &person, nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность реестра через /health.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.get(ctx, "/health")
	if err != nil {
		return "fail", fmt.Sprintf("Реестр персон недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "fail", fmt.Sprintf("Реестр персон вернул статус %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return "degraded", fmt.Sprintf("Реестр персон вернул статус %d", resp.StatusCode)
	}
	return "ok", "реестр персон доступен"
}

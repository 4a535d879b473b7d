// Пакет lookupclient — HTTP-клиент внешнего сервиса поиска сведений
// об объекте недвижимости по адресу.
// Поддерживает TLS с кастомным CA (PD_CA_CERT_PATH), Bearer API-ключ
// и клиентское ограничение частоты запросов.
package lookupclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// ErrLookupFailed — lookup не удался: сетевая ошибка, статус не 2xx
// или тело ответа не является JSON.
var ErrLookupFailed = errors.New("lookup не удался")

// maxResponseBytes — предельный размер тела ответа lookup API.
const maxResponseBytes = 4 << 20

// maxErrorBodyBytes — сколько байт тела ответа с ошибкой попадает в сообщение.
const maxErrorBodyBytes = 200

// Options — параметры клиента.
type Options struct {
	// URL — полный адрес endpoint (POST)
	URL string
	// APIKey — передаётся как Bearer token (пустая строка — без авторизации)
	APIKey string
	// Timeout — таймаут одного запроса
	Timeout time.Duration
	// CACertPath — путь к CA-сертификату (пустая строка — системный пул)
	CACertPath string
	// RateLimit — запросов в секунду (0 — без ограничения)
	RateLimit float64
}

// lookupRequest — тело запроса к lookup API.
type lookupRequest struct {
	Address string `json:"address"`
}

// Client — HTTP-клиент lookup API. Безопасен для конкурентного использования.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New создаёт клиент lookup API.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("не задан URL lookup API")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if opts.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат добавлен в пул доверия lookup-клиента",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	c := &Client{
		url:        strings.TrimRight(opts.URL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "lookup_client")),
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// Lookup выполняет POST {url} с телом {"address": ...} и возвращает
// тело ответа как есть. Все ошибки оборачивают ErrLookupFailed.
func (c *Client) Lookup(ctx context.Context, address string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: ожидание rate limiter: %w", ErrLookupFailed, err)
		}
	}

	body, err := json.Marshal(lookupRequest{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: кодирование запроса: %w", ErrLookupFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: создание запроса: %w", ErrLookupFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос к lookup API: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа: %w", ErrLookupFailed, err)
	}

	c.logger.Debug("Ответ lookup API",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: lookup API вернул статус %d: %s",
			ErrLookupFailed, resp.StatusCode, sanitizeText(string(data), maxErrorBodyBytes))
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("%w: ответ превышает %d байт", ErrLookupFailed, maxResponseBytes)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: ответ не является корректным JSON", ErrLookupFailed)
	}
	// JSONB не принимает невалидный UTF-8 и \u0000
	if !utf8.Valid(data) || bytes.Contains(data, []byte(`\u0000`)) {
		return nil, fmt.Errorf("%w: ответ содержит символы, недопустимые для хранения", ErrLookupFailed)
	}

	return json.RawMessage(data), nil
}

// sanitizeText приводит текст ответа к виду, пригодному для TEXT-колонки:
// невалидный UTF-8 заменяется, NUL удаляются, длина ограничена n байтами
// по границе руны.
func sanitizeText(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

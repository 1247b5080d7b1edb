// Package platform предоставляет клиент для хостинговой платформы:
// проверка пользовательских сессий и операции с объектным хранилищем аватаров.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const avatarBucket = "pet-avatars"

var (
	// ErrNotConfigured возвращается, если клиент создан без адреса или ключей.
	ErrNotConfigured = errors.New("platform client not configured")
	// ErrSessionInvalid возвращается, если платформа не признала токен сессии.
	ErrSessionInvalid = errors.New("session token invalid")
)

// Client инкапсулирует HTTP-взаимодействие с платформой. Анонимный ключ
// используется для проверки сессий, сервисный — для привилегированных
// операций с хранилищем.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент платформы по указанному адресу и ключам.
func NewClient(baseURL, anonKey, serviceKey string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	return &Client{
		baseURL:    base,
		anonKey:    strings.TrimSpace(anonKey),
		serviceKey: strings.TrimSpace(serviceKey),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// VerifySession проверяет токен сессии и возвращает идентификатор пользователя.
func (c *Client) VerifySession(ctx context.Context, token string) (string, error) {
	if c == nil || c.baseURL == "" || c.anonKey == "" {
		return "", ErrNotConfigured
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrSessionInvalid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrSessionInvalid
	default:
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	result.ID = strings.TrimSpace(result.ID)
	if result.ID == "" {
		return "", fmt.Errorf("platform response missing user id")
	}

	return result.ID, nil
}

// RemoveAvatar удаляет объект аватара из хранилища платформы по публичному URL.
// Использует сервисный ключ. Объекты чужих бакетов не трогаются.
func (c *Client) RemoveAvatar(ctx context.Context, avatarURL string) error {
	if c == nil || c.baseURL == "" || c.serviceKey == "" {
		return ErrNotConfigured
	}

	object, ok := AvatarObjectName(avatarURL)
	if !ok {
		return fmt.Errorf("avatar url %q does not belong to bucket %s", avatarURL, avatarBucket)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, avatarBucket, object)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// AvatarObjectName извлекает имя объекта из публичного URL аватара.
// Ожидаемый формат: .../storage/v1/object/public/pet-avatars/<object>.
func AvatarObjectName(rawURL string) (string, bool) {
	marker := "/storage/v1/object/public/" + avatarBucket + "/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return "", false
	}
	object := rawURL[idx+len(marker):]
	if object == "" || strings.Contains(object, "..") {
		return "", false
	}
	return object, true
}

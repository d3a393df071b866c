// Package state owns per-session conversation history: durable storage plus
// the copy-on-read / commit-on-success discipline around it.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	contractx "github.com/trenchburger/attendant/agent/contract"
)

var (
	ErrStateNotFound  = errors.New("session state not found")
	ErrInvalidSession = errors.New("session id is empty")
)

const (
	defaultStoreKeyPrefix = "attendant:session:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// Store persists whole session histories. There is no message-level
// mutation; Save replaces the stored history atomically, which is what
// makes rollback a no-op (simply never call Save on failure).
type Store interface {
	Load(ctx context.Context, sessionID string) ([]contractx.Message, error)
	Save(ctx context.Context, sessionID string, history []contractx.Message) error
	Delete(ctx context.Context, sessionID string) error
}

/* ------------------------------ MemoryStore ------------------------------ */

// MemoryStore keeps histories in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	histories map[string][]contractx.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{histories: make(map[string][]contractx.Message)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]contractx.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.histories[sessionID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return contractx.CloneHistory(history), nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, history []contractx.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories[sessionID] = contractx.CloneHistory(history)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.histories, sessionID)
	return nil
}

/* --------------------------- UpstashRedisStore --------------------------- */

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists session histories in Upstash Redis via REST.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type sessionRecord struct {
	SessionID string              `json:"session_id"`
	Messages  []contractx.Message `json:"messages"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultStoreKeyPrefix,
		ttl:        defaultStoreTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrStateNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(encoded), &record); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	return record.Messages, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, sessionID string, history []contractx.Message) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(sessionRecord{
		SessionID: sessionID,
		Messages:  history,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *UpstashRedisStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	prefix := s.keyPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultStoreKeyPrefix
	}
	return prefix + sessionID, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

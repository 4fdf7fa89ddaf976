package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

// Config controls how the chat client behaves.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	Endpoint   string
	Timeout    time.Duration
	MaxTokens  int
	HTTPClient *http.Client
}

const (
	defaultProvider  = "openai"
	defaultModel     = "gpt-4o-mini"
	defaultEndpoint  = "https://api.openai.com/v1/chat/completions"
	defaultTimeout   = 45 * time.Second
	defaultMaxTokens = 50
	systemPrompt     = "You are a helpful assistant."
)

var ErrMissingAPIKey = errors.New("openai api key is not set (set openai.api_key in config or OPENAI_API_KEY)")

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends single prompts to a chat-completions endpoint. Answers are
// memoized per prompt for the lifetime of the client, so one client should
// be created per run.
type Client struct {
	apiKey    string
	model     string
	endpoint  string
	maxTokens int
	timeout   time.Duration
	client    httpClient

	mu       sync.Mutex
	cache    map[string]string
	calls    int
	inflight singleflight.Group
}

func NewClient(cfg Config) (*Client, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = defaultProvider
	}
	if provider != "openai" {
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var hc httpClient = &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		hc = cfg.HTTPClient
	}

	return &Client{
		apiKey:    apiKey,
		model:     model,
		endpoint:  endpoint,
		maxTokens: maxTokens,
		timeout:   timeout,
		client:    hc,
		cache:     make(map[string]string),
	}, nil
}

// Calls returns how many requests actually reached the endpoint.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Query sends prompt and returns the text of the first choice. Concurrent
// calls with the same prompt share one request.
func (c *Client) Query(ctx context.Context, prompt string) (string, error) {
	if cached, ok := c.cached(prompt); ok {
		utils.Log.Debug("[ai] returning cached response")
		return cached, nil
	}

	v, err, _ := c.inflight.Do(prompt, func() (interface{}, error) {
		if cached, ok := c.cached(prompt); ok {
			return cached, nil
		}
		c.mu.Lock()
		c.calls++
		c.mu.Unlock()

		answer, err := c.send(ctx, prompt)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[prompt] = answer
		c.mu.Unlock()
		return answer, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) cached(prompt string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	answer, ok := c.cache[prompt]
	return answer, ok
}

func (c *Client) send(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(data, "error.message").String(); msg != "" {
			return "", fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, msg)
		}
		return "", fmt.Errorf("openai: HTTP %d", resp.StatusCode)
	}

	content := gjson.GetBytes(data, "choices.0.message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return "", errors.New("openai returned an empty response")
	}
	return content.String(), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompetitionPrompt builds the yes/no question for one event.
func CompetitionPrompt(name, shortDescription, fullDescriptionHTML string) string {
	var b strings.Builder
	b.WriteString("Do you think the following text describes a competition?")
	b.WriteString("The name of the event is: " + name)
	b.WriteString("The description of the event is: " + shortDescription + "\n" + fullDescriptionHTML + "\n\n")
	b.WriteString("Please answer with Yes or No.")
	return b.String()
}

// IsYes reads a yes/no answer. Only the first three characters count.
func IsYes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	if len(a) > 3 {
		a = a[:3]
	}
	return a == "yes"
}

// IsCompetition asks whether the event text describes a competition.
func (c *Client) IsCompetition(ctx context.Context, ev event.CandidateEvent) (bool, error) {
	answer, err := c.Query(ctx, CompetitionPrompt(ev.Name, ev.ShortDescription, ev.FullDescriptionHTML))
	if err != nil {
		return false, err
	}
	utils.Log.Debugf("[ai] %s: competition? %q", ev.ExternalID, answer)
	return IsYes(answer), nil
}

var dateRe = regexp.MustCompile(`(\d{2}-\d{2}-\d{4})`)

// FindDate asks for the most likely date in free text. ok is false when the
// answer held no dd-mm-yyyy date.
func (c *Client) FindDate(ctx context.Context, text string, now time.Time) (time.Time, bool, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The current year is %d\n", now.In(event.Amsterdam).Year())
	b.WriteString("Given the following event information. What is the most likely date for this event?\n")
	b.WriteString("The description of the event is: " + text + "\n\n")
	b.WriteString("Please answer only the date and do this in the format dd-mm-yyyy")

	answer, err := c.Query(ctx, b.String())
	if err != nil {
		return time.Time{}, false, err
	}
	m := dateRe.FindString(strings.ToLower(answer))
	if m == "" {
		return time.Time{}, false, nil
	}
	t, err := event.ParseDayMonthYear(m)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

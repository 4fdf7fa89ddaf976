package whttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    []byte
	// Raw keeps the response bytes as sent, for images and other binary files.
	Raw bool
}

type WHTTPRes struct {
	StatusCode  int
	ContentType string
	HTTPTitle   string
	Body        []byte
	BodyString  string
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

type Options struct {
	Timeout           time.Duration // per call, retries included; default 30s
	Retries           int           // default 3
	RequestsPerSecond float64       // per host; <= 0 means unlimited
	Burst             int
	HTTPClient        *http.Client
}

// Client fetches remote pages with retries, a per-host rate limit and a
// bounded timeout per call.
type Client struct {
	http    *retryablehttp.Client
	timeout time.Duration
	rps     rate.Limit
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(opts Options) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = opts.Retries
	if opts.Retries == 0 {
		retryClient.RetryMax = 3
	}
	if opts.Retries < 0 {
		retryClient.RetryMax = 0
	}
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	if opts.HTTPClient != nil {
		retryClient.HTTPClient = opts.HTTPClient
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := rate.Inf
	if opts.RequestsPerSecond > 0 {
		rps = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:     retryClient,
		timeout:  timeout,
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = l
	}
	return l
}

// SendHTTPRequest performs the request. Text bodies are decoded to UTF-8,
// anything else is returned as received.
func (c *Client) SendHTTPRequest(ctx context.Context, wReq *WHTTPReq) (*WHTTPRes, error) {
	u, err := url.Parse(wReq.URL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	var body interface{}
	if wReq.Body != nil {
		body = wReq.Body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	// Set common headers
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Language", "nl,en;q=0.8")
	for _, h := range wReq.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: wReq.URL, StatusCode: resp.StatusCode}
	}

	wRes := &WHTTPRes{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// without a header the charset is left to the meta prescan
	decodeAs := wRes.ContentType
	if decodeAs == "" {
		wRes.ContentType = http.DetectContentType(raw)
		decodeAs, _, _ = strings.Cut(wRes.ContentType, ";")
	}
	if wReq.Raw || !isText(decodeAs) {
		wRes.Body = raw
		return wRes, nil
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), decodeAs)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", wReq.URL, err)
	}
	if wRes.Body, err = io.ReadAll(reader); err != nil {
		return nil, err
	}
	wRes.BodyString = string(wRes.Body)
	if title, ok := getHTMLTitle(wRes.BodyString); ok {
		wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
	}
	return wRes, nil
}

// Document fetches url and parses it as HTML.
func (c *Client) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	res, err := c.SendHTTPRequest(ctx, &WHTTPReq{URL: pageURL, Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	doc.Url, _ = url.Parse(pageURL)
	return doc, nil
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "html") || strings.Contains(ct, "xml") || strings.Contains(ct, "json")
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}

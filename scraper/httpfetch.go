package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
	"golang.org/x/net/proxy"

	"github.com/use-agent/prisma/models"
)

// maxBodyBytes caps the HTTP fetch path's response size.
const maxBodyBytes = 10 << 20

// errNeedsBrowser rejects HTTP responses that need JavaScript rendering.
var errNeedsBrowser = errors.New("page requires javascript rendering")

// httpFetcher performs plain GET requests with a Chrome TLS fingerprint
// (utls), or through an injected client.
type httpFetcher struct {
	userAgent string
	timeout   time.Duration
	client    *http.Client
}

func newHTTPFetcher(userAgent string, timeout time.Duration, proxy string, client *http.Client) *httpFetcher {
	if client == nil {
		client = &http.Client{Transport: chromeTransport(proxy)}
	}
	return &httpFetcher{userAgent: userAgent, timeout: timeout, client: client}
}

func chromeTransport(proxy string) *http.Transport {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

// fetch retrieves targetURL and returns the response body. Errors are
// *models.Error values.
func (f *httpFetcher) fetch(ctx context.Context, targetURL string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, models.NewError(models.ErrCodeInvalidInput, "build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,es;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, categorizeError(ctx.Err(), models.ErrCodeTimeout, "http fetch timed out")
		}
		return nil, connectionError("", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, models.NewError(models.ErrCodeNavigation, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeNetwork, "read response body")
	}
	return body, nil
}

// dialTLSChrome opens a TLS connection with a Chrome ClientHello. SOCKS5
// proxies are dialed through golang.org/x/net/proxy.
func dialTLSChrome(ctx context.Context, network, addr, proxyAddr string) (net.Conn, error) {
	var dialer proxy.ContextDialer = &net.Dialer{Timeout: 15 * time.Second}
	if proxyAddr != "" {
		if u, err := url.Parse(proxyAddr); err == nil && (u.Scheme == "socks5" || u.Scheme == "socks5h") {
			socks, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("socks5 proxy: %w", err)
			}
			if cd, ok := socks.(proxy.ContextDialer); ok {
				dialer = cd
			}
		}
	}

	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

var (
	reNoscript  = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)
	reEmptyRoot = regexp.MustCompile(`<div id="(root|app|__next)"[^>]*>\s*</div>`)
)

// needsBrowser reports whether an HTTP-fetched page looks like it needs
// JavaScript to render its content: almost no visible text, an empty SPA
// mount point, a noscript warning, or many scripts around little text.
func needsBrowser(body []byte) bool {
	text := extractVisibleText(body)
	if len(text) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	switch {
	case reEmptyRoot.MatchString(lower):
		return true
	case reNoscript.MatchString(lower):
		return true
	case strings.Count(lower, "<script") > 10 && len(text) < 500:
		return true
	}
	return false
}

// extractTitle extracts the <title> content from raw HTML bytes.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// extractVisibleText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content. Used for heuristic analysis only.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}

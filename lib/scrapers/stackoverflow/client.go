package stackoverflow

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	"stackharvest/lib/backoff"
	"stackharvest/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/stackoverflow")

const (
	defaultSite       = "https://stackoverflow.com"
	defaultApiBaseUrl = "https://api.stackexchange.com/2.3"
)

type Client struct {
	site     *url.URL
	api      *resty.Client
	web      *resty.Client
	retry    backoff.Options
	cacheDir string
}

type ClientOptions struct {
	// question page host, defaults to https://stackoverflow.com
	Site string
	// API root, defaults to https://api.stackexchange.com/2.3
	ApiBaseUrl string
	// directory for the on-disk response cache; empty falls back to an
	// in-memory cache
	CacheDir string
	// disables response caching entirely
	NoCache bool
	// retry schedule used when the remote throttles us; the zero value
	// gets the default schedule
	Retry backoff.Options
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Site == "" {
		opts.Site = defaultSite
	}
	if opts.ApiBaseUrl == "" {
		opts.ApiBaseUrl = defaultApiBaseUrl
	}
	if opts.Retry == (backoff.Options{}) {
		opts.Retry = backoff.Options{Base: 1, Cap: 128, Attempts: 10}
	}
	// fail on an invalid retry schedule now rather than on the first 429
	if _, err := backoff.New(opts.Retry); err != nil {
		return nil, err
	}

	site, err := url.Parse(opts.Site)
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}

	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	api, err := newHttpClient(opts.ApiBaseUrl, transport)
	if err != nil {
		return nil, err
	}
	web, err := newHttpClient(opts.Site, transport)
	if err != nil {
		return nil, err
	}
	telemetry.InstrumentResty(api, "scrapers/stackoverflow/api")
	telemetry.InstrumentResty(web, "scrapers/stackoverflow/web")

	return &Client{
		site:     site,
		api:      api,
		web:      web,
		retry:    opts.Retry,
		cacheDir: opts.CacheDir,
	}, nil
}

// CleanCache removes every cached response. It is a no-op unless a
// disk cache directory was configured.
func (c *Client) CleanCache() error {
	if c.cacheDir == "" {
		return nil
	}
	return os.RemoveAll(c.cacheDir)
}

func newTransport(opts ClientOptions) (http.RoundTripper, error) {
	if opts.NoCache {
		return cloudflarebp.AddCloudFlareByPass(http.DefaultTransport), nil
	}

	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if opts.CacheDir != "" {
		if err := os.MkdirAll(opts.CacheDir, 0755); err != nil {
			return nil, err
		}
		cache = diskcache.New(opts.CacheDir)
	}
	return cloudflarebp.AddCloudFlareByPass(httpcache.NewTransport(cache)), nil
}

func newHttpClient(baseUrl string, transport http.RoundTripper) (*resty.Client, error) {
	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = transport
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)
	return client, nil
}

package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Default returns an HTTP client with timeouts so that dead upstreams don't hang tuner slots
// forever. Use for provider API calls (authenticate/list categories/list streams).
//
// Carries a cookie jar scoped by the public suffix list: some Xtream
// resellers sit behind a CDN that pins session affinity with a cookie, and
// without a jar every request can land on a different edge node mid-scan.
func Default() *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Timeout: 60 * time.Second,
		Jar:     jar,
		Transport: &http.Transport{
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}


package httputil

import (
	"net/http"
	"net/url"
	"time"
)

// Clients groups the HTTP clients the daemon uses, each with a timeout
// suited to its traffic.
type Clients struct {
	Source  *http.Client // source API paging
	Media   *http.Client // image downloads, longer timeout
	Webhook *http.Client // outbound notifications
}

// NewClients builds the client set. proxyURL, when non-empty, routes media
// downloads through the given proxy; API and webhook traffic stays direct.
func NewClients(proxyURL string) *Clients {
	media := &http.Client{Timeout: 60 * time.Second}

	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			media.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}

	return &Clients{
		Source:  &http.Client{Timeout: 30 * time.Second},
		Media:   media,
		Webhook: &http.Client{Timeout: 15 * time.Second},
	}
}

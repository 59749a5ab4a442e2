package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"propsyncd/models"
)

const (
	perPage  = 20
	cacheTTL = 1800 * time.Second
)

// Fetcher pages the full listing catalog out of the source API, with a
// time-boxed cache so back-to-back passes do not re-pull an unchanged
// source.
type Fetcher struct {
	client *http.Client
	cache  *Cache
}

func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		client: client,
		cache:  NewCache(),
	}
}

// FetchAll returns every record the source currently exposes, paging with
// page/per_page from page 1 until a short or empty page. Network failures
// surface as FetchError, malformed payloads as ParseError; both abort the
// whole fetch with no partial result.
func (f *Fetcher) FetchAll(ctx context.Context, sourceURL string) ([]models.RawRecord, error) {
	if records, ok := f.cache.Get(cacheKey(sourceURL, "records")); ok {
		log.Printf("fetch: cache hit for source, %d records", len(records))
		return records, nil
	}

	var all []models.RawRecord
	for page := 1; ; page++ {
		records, err := f.fetchPage(ctx, sourceURL, page)
		if err != nil {
			return nil, err
		}

		if len(records) == 0 {
			break
		}
		all = append(all, records...)
		log.Printf("fetch: page %d: %d records (total %d)", page, len(records), len(all))

		if len(records) < perPage {
			break
		}
	}

	f.cache.Set(cacheKey(sourceURL, "records"), all, cacheTTL)
	return all, nil
}

// FetchByID pulls a single record, used by the record repair endpoint.
// Never cached.
func (f *Fetcher) FetchByID(ctx context.Context, sourceURL, id string) (models.RawRecord, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, &models.FetchError{Message: "invalid source URL", Err: err}
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var record models.RawRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, &models.ParseError{Message: "record " + id, Err: err}
	}
	return record, nil
}

// Invalidate drops the cached catalog for a source URL. Called when the
// configured source changes.
func (f *Fetcher) Invalidate(sourceURL string) {
	f.cache.Delete(cacheKey(sourceURL, "records"))
}

func (f *Fetcher) fetchPage(ctx context.Context, sourceURL string, page int) ([]models.RawRecord, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, &models.FetchError{Message: "invalid source URL", Err: err}
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var records []models.RawRecord
	if err := json.Unmarshal(body, &records); err != nil {
		// A non-array response ends paging rather than failing, matching
		// the source's end-of-catalog behavior, but broken JSON is fatal.
		if !json.Valid(body) {
			return nil, &models.ParseError{Message: fmt.Sprintf("page %d", page), Err: err}
		}
		return nil, nil
	}
	return records, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.FetchError{Message: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.FetchError{Message: fmt.Sprintf("source returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.FetchError{Message: "read body", Err: err}
	}
	return body, nil
}

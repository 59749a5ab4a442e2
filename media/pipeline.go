package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"propsyncd/models"
	"propsyncd/storage"
)

const (
	maxImageBytes     = 50 * 1024 * 1024
	downloadParallel  = 4
	downloadsPerSec   = 5
	downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Pipeline downloads listing images, registers them as attachments, and
// derives the fixed-size variants used by the slider, thumbnail, and listing
// presentations.
type Pipeline struct {
	store    storage.PropertyStore
	variants VariantStore
	client   *http.Client
	limiter  *rate.Limiter
	logger   models.Logger
	maxBytes int64
}

// VariantStore persists generated image renditions.
type VariantStore interface {
	Save(ctx context.Context, key string, data io.Reader, contentType string) error
}

func NewPipeline(store storage.PropertyStore, variants VariantStore, client *http.Client, logger models.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Pipeline{
		store:    store,
		variants: variants,
		client:   client,
		limiter:  rate.NewLimiter(downloadsPerSec, downloadsPerSec),
		logger:   logger,
		maxBytes: maxImageBytes,
	}
}

// Ingest processes every URL and, when at least one attachment succeeded,
// replaces the record's image list (clear, relink in input order, first
// handle becomes the cover). Individual download or resize failures are
// logged and skipped; they never abort the batch. With zero successes the
// prior image set is left untouched.
func (p *Pipeline) Ingest(ctx context.Context, localID int64, urls []string) []int64 {
	if len(urls) == 0 {
		return nil
	}

	results := make([]int64, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadParallel)

	for i, imageURL := range urls {
		i, imageURL := i, imageURL
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return nil
			}
			handle, err := p.ingestOne(gctx, localID, imageURL)
			if err != nil {
				p.logger.Log(models.LogLevelError, "image ingest failed",
					map[string]string{"url": imageURL, "error": err.Error()})
				return nil
			}
			results[i] = handle
			return nil
		})
	}
	g.Wait()

	handles := make([]int64, 0, len(results))
	for _, h := range results {
		if h != 0 {
			handles = append(handles, h)
		}
	}

	if len(handles) == 0 {
		p.logger.Log(models.LogLevelWarning, "no images could be ingested",
			map[string]string{"property_id": fmt.Sprintf("%d", localID)})
		return nil
	}

	if err := p.store.ClearImages(ctx, localID); err != nil {
		p.logger.Log(models.LogLevelError, "clear image list failed",
			map[string]string{"property_id": fmt.Sprintf("%d", localID), "error": err.Error()})
		return handles
	}
	if err := p.store.LinkImages(ctx, localID, handles); err != nil {
		p.logger.Log(models.LogLevelError, "link images failed",
			map[string]string{"property_id": fmt.Sprintf("%d", localID), "error": err.Error()})
		return handles
	}
	if err := p.store.SetPrimaryImage(ctx, localID, handles[0]); err != nil {
		p.logger.Log(models.LogLevelError, "set primary image failed",
			map[string]string{"property_id": fmt.Sprintf("%d", localID), "error": err.Error()})
	}
	return handles
}

func (p *Pipeline) ingestOne(ctx context.Context, localID int64, imageURL string) (int64, error) {
	data, contentType, err := p.download(ctx, imageURL)
	if err != nil {
		return 0, &models.AssetError{URL: imageURL, Err: err}
	}

	handle, err := p.store.AttachImage(ctx, localID, path.Base(imageURL), data, contentType)
	if err != nil {
		return 0, &models.StoreWriteError{Op: "attach image", Err: err}
	}

	// Variant failure keeps the base attachment.
	if err := p.generateVariants(ctx, data, contentHash(data)); err != nil {
		p.logger.Log(models.LogLevelWarning, "variant generation failed",
			map[string]string{"url": imageURL, "error": err.Error()})
	}
	return handle, nil
}

func (p *Pipeline) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	// Read one byte past the cap so an oversized body is detected rather
	// than truncated into a corrupt attachment.
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, "", fmt.Errorf("image exceeds %d byte limit", p.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

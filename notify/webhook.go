package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"propsyncd/config"
	"propsyncd/models"
)

const signatureHeader = "X-Webhook-Signature"

// Notifier posts signed completion events to the configured webhook
// endpoint. Delivery failures are logged and swallowed; a missed
// notification never fails a sync pass.
type Notifier struct {
	cfg    *config.Config
	client *http.Client
}

func New(cfg *config.Config, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{cfg: cfg, client: client}
}

func (n *Notifier) Notify(event models.SyncEvent) {
	webhookURL := n.cfg.WebhookURL()
	if webhookURL == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("notify: marshal event: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := n.cfg.WebhookSecret(); secret != "" {
		req.Header.Set(signatureHeader, Sign(secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("notify: webhook delivery failed: %v", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("notify: webhook returned status %d", resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 of body under secret, the signature
// scheme shared by the outbound notifier and the inbound trigger endpoint.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret, in constant
// time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

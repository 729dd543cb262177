// Package mailbridge is the HTTP client for the mail delivery service that
// turns conversation entries into outbound email.
package mailbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SendEntryRequest identifies an entry the bridge should deliver and the
// identity it must deliver it as.
type SendEntryRequest struct {
	OrgID                        int64  `json:"orgId"`
	ConvoPublicID                string `json:"convoPublicId"`
	EntryPublicID                string `json:"entryPublicId"`
	SendAsIdentityPublicID       string `json:"sendAsEmailIdentityPublicId"`
	AddressedParticipantPublicID string `json:"toParticipantPublicId,omitempty"`
}

type Client struct {
	baseURL string
	authKey string
	http    *http.Client
}

func New(baseURL, authKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authKey: authKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// SendConvoEntryEmail asks the bridge to deliver one entry. The entry row is
// already committed when this is called; a bridge failure surfaces to the
// caller without undoing the entry.
func (c *Client) SendConvoEntryEmail(ctx context.Context, req SendEntryRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/internal/send-convo-entry", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authKey != "" {
		httpReq.Header.Set("Authorization", c.authKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call mail bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mail bridge responded %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

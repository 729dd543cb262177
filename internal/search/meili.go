// Package search indexes conversation entries in Meilisearch. Indexing is
// best effort: the database row is the source of truth and a missed index
// write only degrades search results.
package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxEntries = "parley_convo_entries"

// EntryRecord is the searchable projection of one conversation entry.
type EntryRecord struct {
	ID            string `json:"id"`
	ConvoPublicID string `json:"convoPublicId"`
	OrgPublicID   string `json:"orgPublicId"`
	Subject       string `json:"subject"`
	BodyPlainText string `json:"bodyPlainText"`
	Type          string `json:"type"`
	CreatedAt     int64  `json:"createdAt"`
}

// Result is one search hit.
type Result struct {
	EntryPublicID string
	ConvoPublicID string
	Subject       string
	Snippet       string
}

// Meili indexes and searches entries via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the entry index. An
// unreachable server is tolerated; the health loop reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxEntries, PrimaryKey: "id"}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxEntries, err)
	}
	index := m.client.Index(idxEntries)
	filterable := []interface{}{"convoPublicId", "orgPublicId", "type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"subject", "bodyPlainText"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexEntry adds or updates one entry. Errors are logged, not returned; the
// caller has already committed the row.
func (m *Meili) IndexEntry(record EntryRecord) {
	if !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(idxEntries).AddDocuments([]EntryRecord{record}, nil); err != nil {
		log.Printf("search: index entry %s: %v", record.ID, err)
	}
}

// DeleteEntries removes entries from the index after their conversations are
// deleted.
func (m *Meili) DeleteEntries(entryPublicIDs []string) {
	if !m.healthy.Load() || len(entryPublicIDs) == 0 {
		return
	}
	if _, err := m.client.Index(idxEntries).DeleteDocuments(entryPublicIDs, nil); err != nil {
		log.Printf("search: delete %d entries: %v", len(entryPublicIDs), err)
	}
}

// Search queries the entry index, optionally scoped to one conversation.
func (m *Meili) Search(orgPublicID, convoPublicID, query string, limit int) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 20
	}
	filters := []string{fmt.Sprintf("orgPublicId = %q", orgPublicID)}
	if convoPublicID != "" {
		filters = append(filters, fmt.Sprintf("convoPublicId = %q", convoPublicID))
	}
	resp, err := m.client.Index(idxEntries).Search(query, &meili.SearchRequest{
		Limit:                 int64(limit),
		Filter:                filters,
		AttributesToHighlight: []string{"bodyPlainText"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, Result{
			EntryPublicID: decodeString(hit, "id"),
			ConvoPublicID: decodeString(hit, "convoPublicId"),
			Subject:       decodeString(hit, "subject"),
			Snippet:       decodeFormatted(hit, "bodyPlainText"),
		})
	}
	return results, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormatted(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return formatted[key]
}

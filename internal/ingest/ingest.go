// Package ingest polls the upstream asset-status API and records status changes.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"fleet-status-backend/config"
	"fleet-status-backend/internal/notification"
	"fleet-status-backend/internal/opstatus"
	"fleet-status-backend/internal/parse"
	"fleet-status-backend/internal/store"
)

// maxBodyBytes caps a single upstream page.
const maxBodyBytes = 32 << 20

// UpstreamError is a response whose application code is not zero.
type UpstreamError struct {
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned application code %d", e.Code)
	}
	return fmt.Sprintf("upstream returned application code %d: %s", e.Code, e.Message)
}

// Service runs poll cycles against the upstream feed and persists them through a Store.
type Service struct {
	cfg        *config.Config
	store      store.Store
	client     *http.Client
	workerPool *notification.WorkerPool
	now        func() time.Time
}

// NewService creates and initializes a new ingest service.
func NewService(cfg *config.Config, s store.Store) *Service {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Ingest.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.Ingest.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Poller will not use a proxy.", cfg.Ingest.HTTPProxy, err)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:        cfg,
		store:      s,
		client:     &http.Client{Transport: transport, Timeout: 30 * time.Second},
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, s.DB(), webpushOptions),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled. The first cycle runs immediately.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Ingest.Enabled {
		log.Println("Ingest is disabled. Not starting.")
		return
	}
	log.Printf("Starting ingest service, polling every %s", s.cfg.Ingest.Interval)
	s.workerPool.Start(ctx)

	for {
		if err := s.PollOnce(ctx); err != nil {
			log.Printf("Poll cycle failed: %v", err)
		}

		timer := time.NewTimer(s.cfg.Ingest.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Ingest service shutting down.")
			return
		case <-timer.C:
		}
	}
}

// PollOnce fetches the whole feed and applies it. A fetch error aborts the cycle
// before any state is touched: a partial feed would close the intervals of every
// machine on the missing pages.
func (s *Service) PollOnce(ctx context.Context) error {
	now := s.now()

	items, err := s.fetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch aborted after %d items, status data left untouched: %w", len(items), err)
	}

	s.normalize(items)
	if err := s.store.UpsertFleetsAndMachines(ctx, items); err != nil {
		return fmt.Errorf("failed to upsert fleets and machines: %w", err)
	}

	// An empty feed still runs: machines that vanished get their open status closed.
	transitions, err := s.store.UpdateStatus(ctx, now, items)
	if err != nil {
		return fmt.Errorf("failed to update statuses: %w", err)
	}

	queued := 0
	for _, tr := range transitions {
		if s.workerPool.Dispatch(tr) {
			queued++
		}
	}
	log.Printf("Poll cycle finished: %d items, %d transitions, %d notifications queued", len(items), len(transitions), queued)
	return nil
}

// fetchAll walks the pages until total is reached or a page comes back empty.
// On error the items fetched so far are returned with it.
func (s *Service) fetchAll(ctx context.Context) ([]store.ApiItem, error) {
	pageSize := s.cfg.Ingest.Request.PageSize
	var items []store.ApiItem
	for page := 1; ; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page, err)
		}
		items = append(items, resp.Data.Items...)
		if len(resp.Data.Items) == 0 || page*pageSize >= resp.Data.Total {
			return items, nil
		}
	}
}

// normalize resolves status tokens and change timestamps in place.
// Items with an unknown status keep an empty StatusParsed.
func (s *Service) normalize(items []store.ApiItem) {
	for i := range items {
		item := &items[i]
		status, err := opstatus.Parse(item.Status)
		if err != nil {
			log.Printf("Warning: machine %s: %v", item.ID, err)
		} else {
			item.StatusParsed = status
		}

		if item.ChangedAt == nil {
			continue
		}
		changedAt, err := parse.Timestamp(*item.ChangedAt, s.cfg.Ingest.TimestampLayout, s.cfg.Ingest.Timezone)
		if err != nil {
			log.Printf("Warning: could not parse changedAt for machine %s: %v", item.ID, err)
			continue
		}
		if changedAt != nil {
			utc := changedAt.UTC()
			item.ChangedAtParsed = &utc
		}
	}
}

// fetchPage POSTs the configured payload with page and pageSize set.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any, len(s.cfg.Ingest.Request.Payload)+2)
	for k, v := range s.cfg.Ingest.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Ingest.Request.PageSize

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Ingest.Request.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range s.cfg.Ingest.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	var apiResp ApiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, &UpstreamError{Code: apiResp.Code, Message: apiResp.Message}
	}
	return &apiResp, nil
}

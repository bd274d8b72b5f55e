// Package storage indexes classified records into daily OpenSearch indices.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/pktwatch/internal/logging"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
)

// Config holds OpenSearch connection and index configuration
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	FlushBytes    int
}

// DefaultConfig returns sensible defaults for OpenSearch configuration
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "pktwatch-records",
	}
}

// Document is the indexed form of one record.
type Document struct {
	RunID       string    `json:"run_id"`
	Seq         int       `json:"seq"`
	Input       string    `json:"input"`
	IndexedAt   time.Time `json:"@timestamp"`
	Timestamp   string    `json:"timestamp"`
	Source      string    `json:"source"`
	Dest        string    `json:"dest"`
	Service     string    `json:"service,omitempty"`
	Info        string    `json:"info"`
	Verdict     string    `json:"verdict"`
	VerdictSlug string    `json:"verdict_slug"`
	Threat      bool      `json:"threat"`
}

// IndexResponse tallies one bulk run.
type IndexResponse struct {
	Index   string
	Indexed int
	Failed  int
	Errors  []string
}

// Client writes records to OpenSearch.
type Client struct {
	osClient *opensearch.Client
	config   Config
	logger   *logging.Logger
	now      func() time.Time

	templateOnce sync.Once
	templateErr  error
}

// NewClient creates a new OpenSearch client
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultConfig().IndexPrefix
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Client{
		osClient: client,
		config:   cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *Client) Name() string { return "opensearch" }

// IndexName is the daily index a record indexed at t lands in.
func (c *Client) IndexName(t time.Time) string {
	return c.config.IndexPrefix + "-" + t.Format("2006.01.02")
}

// Deliver satisfies pipeline.Sink. Any per-document failure fails the delivery.
func (c *Client) Deliver(ctx context.Context, res *pipeline.Result) error {
	if err := c.EnsureTemplate(ctx); err != nil {
		return err
	}
	resp, err := c.Index(ctx, res)
	if err != nil {
		return err
	}
	if resp.Failed > 0 {
		return fmt.Errorf("opensearch rejected %d of %d documents: %s", resp.Failed, resp.Failed+resp.Indexed, resp.Errors[0])
	}
	return nil
}

// EnsureTemplate installs the index template once per client.
func (c *Client) EnsureTemplate(ctx context.Context) error {
	c.templateOnce.Do(func() {
		c.templateErr = c.putTemplate(ctx)
	})
	return c.templateErr
}

func (c *Client) putTemplate(ctx context.Context) error {
	keyword := map[string]interface{}{"type": "keyword"}
	template := map[string]interface{}{
		"index_patterns": []string{c.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"@timestamp":   map[string]interface{}{"type": "date"},
					"run_id":       keyword,
					"seq":          map[string]interface{}{"type": "long"},
					"input":        keyword,
					"timestamp":    keyword,
					"source":       keyword,
					"dest":         keyword,
					"service":      keyword,
					"info":         map[string]interface{}{"type": "text"},
					"verdict":      keyword,
					"verdict_slug": keyword,
					"threat":       map[string]interface{}{"type": "boolean"},
				},
			},
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return err
	}

	res, err := c.osClient.Indices.PutIndexTemplate(
		c.config.IndexPrefix+"-template",
		bytes.NewReader(body),
		c.osClient.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index template: %s - %s", res.Status(), string(bodyBytes))
	}
	return nil
}

// Index bulk-indexes every record of res. Document IDs are derived from the
// run ID and record position, so re-indexing a run overwrites it.
func (c *Client) Index(ctx context.Context, res *pipeline.Result) (*IndexResponse, error) {
	indexedAt := c.now()
	resp := &IndexResponse{Index: c.IndexName(indexedAt)}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:     c.osClient,
		Index:      resp.Index,
		NumWorkers: 1,
		FlushBytes: c.config.FlushBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var mu sync.Mutex
	for i, rec := range res.Records {
		doc := Document{
			RunID:       res.RunID,
			Seq:         i,
			Input:       res.Source,
			IndexedAt:   indexedAt,
			Timestamp:   rec.Timestamp,
			Source:      rec.SourceAddress,
			Dest:        rec.DestAddress,
			Service:     rec.Service,
			Info:        rec.DisplayInfo,
			Verdict:     rec.Verdict.String(),
			VerdictSlug: rec.Verdict.Slug(),
			Threat:      rec.Verdict.IsThreat(),
		}
		data, err := json.Marshal(doc)
		if err != nil {
			mu.Lock()
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to marshal record %d: %v", i, err))
			mu.Unlock()
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: res.RunID + "-" + strconv.Itoa(i),
			Body:       bytes.NewReader(data),
			OnSuccess: func(context.Context, opensearchutil.BulkIndexerItem, opensearchutil.BulkIndexerResponseItem) {
				mu.Lock()
				resp.Indexed++
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, item opensearchutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				resp.Failed++
				if err != nil {
					resp.Errors = append(resp.Errors, err.Error())
				} else {
					resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %s", item.Error.Type, item.Error.Reason))
				}
			},
		})
		if err != nil {
			mu.Lock()
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to add to bulk indexer: %v", err))
			mu.Unlock()
		}
	}

	if err := bi.Close(ctx); err != nil {
		return resp, fmt.Errorf("bulk indexer close: %w", err)
	}

	c.logger.DebugContext(ctx, "records indexed",
		"index", resp.Index,
		logging.Records(resp.Indexed),
		"failed", resp.Failed,
	)
	return resp, nil
}

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
)

// fakeCluster answers the index template and bulk APIs.
type fakeCluster struct {
	mu        sync.Mutex
	paths     []string
	ids       []string
	docs      []Document
	templates int
	rejectID  string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasPrefix(r.URL.Path, "/_index_template/"):
		f.templates++
		_, _ = w.Write([]byte(`{"acknowledged":true}`))

	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.paths = append(f.paths, r.URL.Path)
		var items []string
		hasErrors := false
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1024*1024), 1024*1024)
		for sc.Scan() {
			var meta map[string]map[string]string
			if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			id := meta["index"]["_id"]
			if !sc.Scan() {
				break
			}
			var doc Document
			_ = json.Unmarshal(sc.Bytes(), &doc)
			f.ids = append(f.ids, id)
			f.docs = append(f.docs, doc)

			if id == f.rejectID {
				hasErrors = true
				items = append(items, fmt.Sprintf(`{"index":{"_id":%q,"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}`, id))
				continue
			}
			items = append(items, fmt.Sprintf(`{"index":{"_id":%q,"status":201}}`, id))
		}
		fmt.Fprintf(w, `{"took":1,"errors":%t,"items":[%s]}`, hasErrors, strings.Join(items, ","))

	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func newTestClient(t *testing.T, cluster *fakeCluster) *Client {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.IndexPrefix = "test-records"
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }
	return c
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:  "run-7",
		Source: "capture.txt",
		Records: []model.ClassifiedRecord{
			{Timestamp: "12:00:01", SourceAddress: "10.0.0.5", DestAddress: "10.0.0.1", Service: "ssh", DisplayInfo: "S", Verdict: model.VerdictSYNScan},
			{Timestamp: "12:00:02", SourceAddress: "10.0.0.9", DestAddress: "8.8.8.8", Service: "domain", DisplayInfo: "1+ A? a.", Verdict: model.VerdictDNSQuery},
			{Timestamp: "12:00:03", SourceAddress: "10.0.0.2", DestAddress: "10.0.0.3", DisplayInfo: "P.", Verdict: model.VerdictNormal},
		},
	}
}

func TestClient_IndexName(t *testing.T) {
	c := newTestClient(t, &fakeCluster{})
	assert.Equal(t, "test-records-2026.03.09", c.IndexName(c.now()))
}

func TestClient_Deliver(t *testing.T) {
	cluster := &fakeCluster{}
	c := newTestClient(t, cluster)

	require.NoError(t, c.Deliver(context.Background(), testResult()))
	require.NoError(t, c.Deliver(context.Background(), testResult()))

	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	assert.Equal(t, 1, cluster.templates)
	require.Len(t, cluster.docs, 6)
	assert.Equal(t, "/test-records-2026.03.09/_bulk", cluster.paths[0])
	assert.Equal(t, []string{"run-7-0", "run-7-1", "run-7-2"}, cluster.ids[:3])

	first := cluster.docs[0]
	assert.Equal(t, "run-7", first.RunID)
	assert.Equal(t, "capture.txt", first.Input)
	assert.Equal(t, "10.0.0.5", first.Source)
	assert.Equal(t, "SYN Scan/Flood", first.Verdict)
	assert.Equal(t, "syn_scan", first.VerdictSlug)
	assert.True(t, first.Threat)
	assert.False(t, cluster.docs[1].Threat)
	assert.Equal(t, 2, cluster.docs[2].Seq)
}

func TestClient_IndexReportsRejections(t *testing.T) {
	cluster := &fakeCluster{rejectID: "run-7-1"}
	c := newTestClient(t, cluster)

	resp, err := c.Index(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Indexed)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "mapper_parsing_exception")

	err = c.Deliver(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected 1 of 3")
}

func TestClient_EmptyRun(t *testing.T) {
	cluster := &fakeCluster{}
	c := newTestClient(t, cluster)

	resp, err := c.Index(context.Background(), &pipeline.Result{RunID: "empty"})
	require.NoError(t, err)
	assert.Zero(t, resp.Indexed)
	assert.Empty(t, cluster.paths)
}

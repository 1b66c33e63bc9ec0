package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/telemetry/metrics"
)

func seedStore(t *testing.T, store docstore.Store, name string, n int) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", name, err)
	}
	for i := 0; i < n; i++ {
		doc := docstore.Document{"_id": fmt.Sprintf("rec-%02d", i), "value": float64(i)}
		if _, err := db.Put(ctx, doc, docstore.WriteOptions{}); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}
}

func TestDumper_Dump(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedStore(t, store, "data||p1", 25)
	seedStore(t, store, "projects", 1)

	dumper := NewDumper(store, config.BackupConfig{DumpBlockSize: 10}, nil)
	var buf bytes.Buffer
	stats, err := dumper.Dump(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}
	if stats.Databases != 2 || stats.Documents != 26 {
		t.Errorf("stats = %+v, want 2 databases and 26 documents", stats)
	}

	var kinds []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		line, err := ParseLine(sc.Bytes())
		if err != nil {
			t.Fatalf("ParseLine(%s) failed: %v", sc.Text(), err)
		}
		if line.Kind == LineHeader {
			kinds = append(kinds, line.Database)
		}
	}
	// Databases are dumped in List order.
	if strings.Join(kinds, ",") != "data||p1,projects" {
		t.Errorf("headers = %v", kinds)
	}
}

func TestDumper_Dump_LineFormat(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedStore(t, store, "data||p1", 1)

	var buf bytes.Buffer
	if _, err := NewDumper(store, config.BackupConfig{}, nil).Dump(context.Background(), &buf, WithDatabases("data||p1")); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(out) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(out), buf.String())
	}

	var header map[string]any
	if err := json.Unmarshal([]byte(out[0]), &header); err != nil {
		t.Fatal(err)
	}
	info, _ := header["info"].(map[string]any)
	if header["type"] != "header" || header["database"] != "data||p1" || info["doc_count"] != float64(1) {
		t.Errorf("header = %v", header)
	}

	var doc struct {
		ID    string            `json:"id"`
		Key   string            `json:"key"`
		Value map[string]string `json:"value"`
		Doc   map[string]any    `json:"doc"`
	}
	if err := json.Unmarshal([]byte(out[1]), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID != "rec-00" || doc.Key != "rec-00" || doc.Value["rev"] == "" || doc.Doc["_rev"] != doc.Value["rev"] {
		t.Errorf("document line = %+v", doc)
	}
}

func TestDumper_RoundTrip(t *testing.T) {
	source := docstore.NewMemoryStore()
	seedStore(t, source, "data||p1", 12)
	seedStore(t, source, "metadata||p1", 2)
	seedStore(t, source, "projects", 1)

	var buf bytes.Buffer
	if _, err := NewDumper(source, config.BackupConfig{DumpBlockSize: 5}, nil).Dump(context.Background(), &buf); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	resolver := newTestResolver()
	stats, err := newTestRestorer(t, resolver, RestoreOptions{}).Restore(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	if stats.Written != 15 || stats.Invalid != 0 {
		t.Errorf("stats = %+v, want 15 written", stats)
	}

	info, _ := resolver.db("data||p1").Info(context.Background())
	if info.DocCount != 12 {
		t.Errorf("data||p1 has %d documents, want 12", info.DocCount)
	}
}

func TestDumper_Metrics(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	store := docstore.NewMemoryStore()
	seedStore(t, store, "projects", 1)

	if _, err := NewDumper(store, config.BackupConfig{}, collector).Dump(context.Background(), &bytes.Buffer{}, WithTrigger("http")); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	expected := `
# HELP test_backup_runs_total Backup dumps by trigger and status
# TYPE test_backup_runs_total counter
test_backup_runs_total{status="success",trigger="http"} 1
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "test_backup_runs_total"); err != nil {
		t.Error(err)
	}
}

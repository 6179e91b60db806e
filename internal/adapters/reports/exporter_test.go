package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"admitcore/internal/blob"
	"admitcore/internal/infra/persistence/memory"
	"admitcore/internal/ranking"
	"admitcore/pkg/domain"
)

func seedProjector(t *testing.T) *ranking.Projector {
	t.Helper()
	store := memory.NewStore(domain.NewRulesEngine())
	ctx := context.Background()
	if _, _, err := store.ConfigureOffer(ctx, domain.ProgramOffer{Base: domain.Base{ID: "PROG-1"}, TotalSeats: 5}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	for i, score := range []float64{900, 750} {
		candidate := fmt.Sprintf("cand-%d", i+1)
		_, err := store.RunInOfferScope(ctx, "PROG-1", func(tx domain.OfferTx) error {
			_, createErr := tx.CreateAllocation(domain.AllocationRecord{
				CandidateID: candidate,
				Tier:        domain.TierGeneral,
				Score:       score,
				State:       domain.StateAssigned,
			})
			return createErr
		})
		if err != nil {
			t.Fatalf("seed %s: %v", candidate, err)
		}
	}
	return ranking.NewProjector(store)
}

func waitForExport(t *testing.T, e *Exporter, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := e.GetExport(id)
		if !ok {
			t.Fatalf("export %s disappeared", id)
		}
		switch record.Status {
		case ExportStatusSucceeded, ExportStatusFailed:
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return ExportRecord{}
}

func TestExporter_RendersBothFormats(t *testing.T) {
	store := blob.NewMemory()
	audit := &MemoryAuditLog{}
	e := NewExporter(seedProjector(t), store, audit)
	e.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := e.Stop(ctx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	queued, err := e.EnqueueExport(context.Background(), ExportInput{OfferID: "PROG-1", RequestedBy: "registrar"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != ExportStatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("queued record = %+v", queued)
	}

	record := waitForExport(t, e, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	if len(record.Artifacts) != 2 || record.CompletedAt == nil {
		t.Fatalf("record = %+v", record)
	}

	byFormat := make(map[Format]Artifact)
	for _, artifact := range record.Artifacts {
		byFormat[artifact.Format] = artifact
		if artifact.Rows != 2 {
			t.Fatalf("artifact rows = %d, want 2", artifact.Rows)
		}
	}

	jsonArtifact := byFormat[FormatJSON]
	wantKey := fmt.Sprintf("rankings/PROG-1/%s.json", queued.ID)
	if jsonArtifact.Key != wantKey {
		t.Fatalf("json key = %s, want %s", jsonArtifact.Key, wantKey)
	}
	info, rc, err := store.Get(context.Background(), jsonArtifact.Key)
	if err != nil {
		t.Fatalf("get json artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	rc.Close()
	if info.Metadata["rows"] != "2" {
		t.Fatalf("blob metadata = %+v", info.Metadata)
	}
	var entries []ranking.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		t.Fatalf("decode json artifact: %v", err)
	}
	if len(entries) != 2 || entries[0].CandidateID != "cand-1" {
		t.Fatalf("entries = %+v", entries)
	}

	_, rc, err = store.Get(context.Background(), byFormat[FormatCSV].Key)
	if err != nil {
		t.Fatalf("get csv artifact: %v", err)
	}
	rows, err := csv.NewReader(rc).ReadAll()
	rc.Close()
	if err != nil {
		t.Fatalf("decode csv artifact: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "position" || rows[1][5] != "900.00" {
		t.Fatalf("csv content = %+v", rows)
	}

	statuses := make([]ExportStatus, 0, 4)
	for _, entry := range audit.Entries() {
		if entry.Action != "ranking_export" || entry.Actor != "registrar" {
			t.Fatalf("audit entry = %+v", entry)
		}
		statuses = append(statuses, entry.Status)
	}
	if len(statuses) < 3 || statuses[0] != ExportStatusQueued || statuses[len(statuses)-1] != ExportStatusSucceeded {
		t.Fatalf("audit trail = %+v", statuses)
	}
}

func TestExporter_RejectsUnknownFormat(t *testing.T) {
	e := NewExporter(seedProjector(t), blob.NewMemory(), nil)
	_, err := e.EnqueueExport(context.Background(), ExportInput{Formats: []Format{"parquet"}})
	if err == nil || !strings.Contains(err.Error(), "unsupported report format") {
		t.Fatalf("err = %v", err)
	}
}

func TestExporter_DeduplicatesFormats(t *testing.T) {
	e := NewExporter(seedProjector(t), blob.NewMemory(), nil)
	record, err := e.EnqueueExport(context.Background(), ExportInput{Formats: []Format{FormatJSON, FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(record.Formats) != 1 || record.Formats[0] != FormatJSON {
		t.Fatalf("formats = %+v", record.Formats)
	}
}

func TestExporter_ArtifactURLSigned(t *testing.T) {
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}
	e := NewExporter(seedProjector(t), store, nil)
	e.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	}()

	queued, err := e.EnqueueExport(context.Background(), ExportInput{OfferID: "PROG-1", Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, e, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	wantURL := fmt.Sprintf("http://local.blob/rankings/PROG-1/%s.json", queued.ID)
	if record.Artifacts[0].URL != wantURL {
		t.Fatalf("artifact url = %s, want %s", record.Artifacts[0].URL, wantURL)
	}
}

// A rejected enqueue must not leave a queued job or an open audit trail
// behind.
func TestExporter_QueueFullLeavesNoStaleJob(t *testing.T) {
	audit := &MemoryAuditLog{}
	e := NewExporter(seedProjector(t), blob.NewMemory(), audit)
	ctx := context.Background()

	// Worker not started, so the queue fills to capacity and stays full.
	capacity := cap(e.queue)
	for i := 0; i < capacity; i++ {
		if _, err := e.EnqueueExport(ctx, ExportInput{Formats: []Format{FormatJSON}}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	_, err := e.EnqueueExport(ctx, ExportInput{Formats: []Format{FormatJSON}})
	if err == nil || !strings.Contains(err.Error(), "export queue full") {
		t.Fatalf("err = %v", err)
	}

	e.mu.RLock()
	jobs := len(e.jobs)
	e.mu.RUnlock()
	if jobs != capacity {
		t.Fatalf("jobs = %d, want %d", jobs, capacity)
	}

	entries := audit.Entries()
	if len(entries) != capacity+2 {
		t.Fatalf("audit entries = %d, want %d", len(entries), capacity+2)
	}
	last := entries[len(entries)-1]
	if last.Status != ExportStatusFailed || last.Note != "export queue full" {
		t.Fatalf("closing audit entry = %+v", last)
	}
}

func TestExporter_AllOffersScope(t *testing.T) {
	store := blob.NewMemory()
	e := NewExporter(seedProjector(t), store, nil)
	e.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	}()

	queued, err := e.EnqueueExport(context.Background(), ExportInput{Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, e, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	wantKey := fmt.Sprintf("rankings/all/%s.json", queued.ID)
	if record.Artifacts[0].Key != wantKey {
		t.Fatalf("key = %s, want %s", record.Artifacts[0].Key, wantKey)
	}
}

func TestExporter_GetExportUnknown(t *testing.T) {
	e := NewExporter(seedProjector(t), blob.NewMemory(), nil)
	if _, ok := e.GetExport("nope"); ok {
		t.Fatalf("unknown export should not resolve")
	}
}

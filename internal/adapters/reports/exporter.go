// Package reports renders ranking leaderboards to downloadable artifacts in
// blob storage. Exports run asynchronously on a single worker goroutine.
package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"admitcore/internal/blob"
	"admitcore/internal/ranking"
)

// Format identifies a report serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// Artifact captures one stored report file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRecord tracks an export request and its resulting artifacts.
type ExportRecord struct {
	ID          string       `json:"id"`
	OfferID     string       `json:"offer_id"` // empty means all offers
	Formats     []Format     `json:"formats"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	RequestedBy string       `json:"requested_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// ExportInput is an enqueue request.
type ExportInput struct {
	OfferID     string
	Formats     []Format
	RequestedBy string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for report exports.
type AuditEntry struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor"`
	OfferID    string       `json:"offer_id,omitempty"`
	Status     ExportStatus `json:"status"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Exporter executes leaderboard exports asynchronously.
type Exporter struct {
	projector *ranking.Projector
	store     blob.Store
	audit     AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewExporter constructs a report exporter.
func NewExporter(projector *ranking.Projector, store blob.Store, audit AuditLogger) *Exporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Exporter{
		projector: projector,
		store:     store,
		audit:     audit,
		queue:     make(chan exportTask, 32),
		jobs:      make(map[string]*ExportRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing export requests.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop signals the worker to halt and waits for completion.
func (e *Exporter) Stop(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Exporter) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.queue:
			e.process(task)
		}
	}
}

// EnqueueExport schedules a leaderboard export and returns the queued record.
func (e *Exporter) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, f := range formats {
		if f != FormatJSON && f != FormatCSV {
			return ExportRecord{}, fmt.Errorf("unsupported report format %s", f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		uniq = append(uniq, f)
		seen[f] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		OfferID:     input.OfferID,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The job and its queued audit entry must exist before the worker can see
	// the task, so the send comes last. A full queue must not leave a
	// permanently-queued job behind: unregister it and close the audit trail.
	e.mu.Lock()
	e.jobs[id] = &record
	snapshot := record.copy()
	e.mu.Unlock()

	e.recordAudit(ctx, input.RequestedBy, input.OfferID, ExportStatusQueued, "")

	select {
	case e.queue <- exportTask{id: id, input: input}:
	default:
		e.mu.Lock()
		delete(e.jobs, id)
		e.mu.Unlock()
		e.recordAudit(ctx, input.RequestedBy, input.OfferID, ExportStatusFailed, "export queue full")
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (e *Exporter) GetExport(id string) (ExportRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (e *Exporter) process(task exportTask) {
	e.updateStatus(task.id, ExportStatusRunning, "")

	var entries []ranking.Entry
	var err error
	if task.input.OfferID == "" {
		entries, err = e.projector.RankAll(e.ctx)
	} else {
		entries, err = e.projector.Rank(e.ctx, task.input.OfferID)
	}
	if err != nil {
		e.fail(task.id, fmt.Sprintf("ranking projection failed: %v", err))
		return
	}

	record, ok := e.GetExport(task.id)
	if !ok {
		return
	}
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := render(format, entries)
		if err != nil {
			e.fail(task.id, err.Error())
			return
		}
		key := artifactKey(task.input.OfferID, task.id, format)
		info, err := e.store.Put(e.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"rows": strconv.Itoa(len(entries))},
		})
		if err != nil {
			e.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			URL:         e.downloadURL(key, info),
			Rows:        len(entries),
			CreatedAt:   info.LastModified,
		})
	}
	e.complete(task.id, artifacts)
}

// downloadURL prefers a presigned GET link for the artifact; backends without
// signing fall back to the store-reported URL.
func (e *Exporter) downloadURL(key string, info blob.Info) string {
	signed, err := e.store.PresignURL(e.ctx, key, blob.SignedURLOptions{Method: "GET"})
	if err != nil || signed == "" {
		return info.URL
	}
	return signed
}

func artifactKey(offerID, exportID string, format Format) string {
	scope := offerID
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("rankings/%s/%s.%s", scope, exportID, format)
}

func render(format Format, entries []ranking.Entry) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(entries)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		header := []string{"position", "allocation_id", "candidate_id", "offer_id", "tier", "score", "merit_order", "state"}
		if err := writer.Write(header); err != nil {
			return nil, "", err
		}
		for _, entry := range entries {
			row := []string{
				strconv.Itoa(entry.Position),
				strconv.FormatInt(entry.AllocationID, 10),
				entry.CandidateID,
				entry.OfferID,
				string(entry.Tier),
				strconv.FormatFloat(entry.Score, 'f', 2, 64),
				strconv.FormatInt(entry.MeritOrder, 10),
				string(entry.State),
			}
			if err := writer.Write(row); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %s", format)
	}
}

func (e *Exporter) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	e.mu.Lock()
	record, ok := e.jobs[id]
	var actor, offer string
	if ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor, offer = record.RequestedBy, record.OfferID
	}
	e.mu.Unlock()
	if ok {
		e.recordAudit(e.ctx, actor, offer, status, message)
	}
}

func (e *Exporter) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	e.mu.Lock()
	record, ok := e.jobs[id]
	var actor, offer string
	if ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, offer = record.RequestedBy, record.OfferID
	}
	e.mu.Unlock()
	if ok {
		e.recordAudit(e.ctx, actor, offer, ExportStatusSucceeded, "")
	}
}

func (e *Exporter) fail(id, reason string) {
	now := time.Now().UTC()
	e.mu.Lock()
	record, ok := e.jobs[id]
	var actor, offer string
	if ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, offer = record.RequestedBy, record.OfferID
	}
	e.mu.Unlock()
	if ok {
		e.recordAudit(e.ctx, actor, offer, ExportStatusFailed, reason)
	}
}

func (e *Exporter) recordAudit(ctx context.Context, actor, offerID string, status ExportStatus, note string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "ranking_export",
		Actor:      actor,
		OfferID:    offerID,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

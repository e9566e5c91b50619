package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// WatermarkKey holds the creation-time watermark of the last export when
// archived offers are kept in the store. It sits outside domain.ArchivePrefix
// so archive listings only show JSONL objects.
const WatermarkKey = "archive/offers.watermark.json"

// OfferArchiver implements domain.Archiver. It exports settled offers older
// than a cutoff to object storage as JSONL and records the run in the audit
// log. With pruning, exported offers are removed from the primary store.
// Without it, a watermark on CreatedAt keeps each offer in one export.
type OfferArchiver struct {
	writer domain.BlobWriter
	marks  domain.BlobReader // optional, persists the watermark
	offers domain.OfferStore
	audit  domain.AuditStore // optional
	prune  bool
	now    func() time.Time
	logger *slog.Logger

	watermark       time.Time
	watermarkLoaded bool
}

type watermarkDoc struct {
	CreatedBefore time.Time `json:"createdBefore"`
}

// ArchiverOption configures an OfferArchiver.
type ArchiverOption func(*OfferArchiver)

// WithAudit records every non-empty archive run in audit.
func WithAudit(audit domain.AuditStore) ArchiverOption {
	return func(a *OfferArchiver) { a.audit = audit }
}

// WithPrune deletes archived offers from the store after upload.
func WithPrune(prune bool) ArchiverOption {
	return func(a *OfferArchiver) { a.prune = prune }
}

// WithWatermarkReader reads the persisted watermark through r so it survives
// restarts. Without it the watermark starts empty in each process.
func WithWatermarkReader(r domain.BlobReader) ArchiverOption {
	return func(a *OfferArchiver) { a.marks = r }
}

// WithClock overrides time.Now for object naming.
func WithClock(now func() time.Time) ArchiverOption {
	return func(a *OfferArchiver) { a.now = now }
}

// NewArchiver creates an OfferArchiver.
func NewArchiver(writer domain.BlobWriter, offers domain.OfferStore, logger *slog.Logger, opts ...ArchiverOption) *OfferArchiver {
	a := &OfferArchiver{
		writer: writer,
		offers: offers,
		now:    time.Now,
		logger: logger.With(slog.String("component", "archiver")),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

var _ domain.Archiver = (*OfferArchiver)(nil)

// ArchiveOffers uploads terminal offers created before the cutoff and
// returns how many were archived. Pending offers are never archived.
func (a *OfferArchiver) ArchiveOffers(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.offers.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive offers query: %w", err)
	}

	from, upTo := time.Time{}, before
	if !a.prune {
		if from, err = a.loadWatermark(ctx); err != nil {
			return 0, err
		}
		upTo = exportBound(all, from, before)
	}

	var settled []domain.Offer
	for _, o := range all {
		if o.Status.IsTerminal() && !o.CreatedAt.Before(from) && o.CreatedAt.Before(upTo) {
			settled = append(settled, o)
		}
	}
	if len(settled) == 0 {
		a.advanceWatermark(ctx, upTo)
		return 0, nil
	}

	buf, err := marshalJSONL(settled)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive offers marshal: %w", err)
	}

	path := archivePath(domain.ArchivePrefix, a.now())
	if int64(len(buf)) > MinPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive offers upload: %w", err)
	}

	count := int64(len(settled))
	a.logger.Info("offers archived", slog.String("path", path), slog.Int64("count", count))

	// The upload is done; audit and prune failures must not cause a re-export.
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.offers", map[string]any{
			"path":   path,
			"count":  count,
			"before": upTo.Format(time.RFC3339),
			"pruned": a.prune,
		}); err != nil {
			a.logger.Error("audit archive run failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	if a.prune {
		for _, o := range settled {
			if err := a.offers.Delete(ctx, o.ID); err != nil {
				a.logger.Warn("prune archived offer failed",
					slog.String("offer_id", o.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	} else {
		a.advanceWatermark(ctx, upTo)
	}
	return count, nil
}

// exportBound stops the export window at the oldest offer still pending
// inside it, so an offer that settles later is exported by a later run.
func exportBound(all []domain.Offer, from, before time.Time) time.Time {
	bound := before
	for _, o := range all {
		if !o.Status.IsTerminal() && !o.CreatedAt.Before(from) && o.CreatedAt.Before(bound) {
			bound = o.CreatedAt
		}
	}
	return bound
}

func (a *OfferArchiver) loadWatermark(ctx context.Context) (time.Time, error) {
	if a.watermarkLoaded || a.marks == nil {
		return a.watermark, nil
	}
	body, err := a.marks.Get(ctx, WatermarkKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return time.Time{}, fmt.Errorf("s3blob: read archive watermark: %w", err)
	default:
		defer body.Close()
		var doc watermarkDoc
		if err := json.NewDecoder(body).Decode(&doc); err != nil {
			return time.Time{}, fmt.Errorf("s3blob: decode archive watermark: %w", err)
		}
		a.watermark = doc.CreatedBefore
	}
	a.watermarkLoaded = true
	return a.watermark, nil
}

// advanceWatermark moves the watermark forward and persists it. A failed
// write keeps the in-memory value, so only a restart can repeat an export.
func (a *OfferArchiver) advanceWatermark(ctx context.Context, to time.Time) {
	if a.prune || !to.After(a.watermark) {
		return
	}
	a.watermark = to
	data, err := json.Marshal(watermarkDoc{CreatedBefore: to.UTC()})
	if err == nil {
		err = a.writer.Put(ctx, WatermarkKey, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		a.logger.Warn("persist archive watermark failed", slog.String("error", err.Error()))
	}
}

// archivePath partitions archive objects by month of the run:
//
//	archive/offers/2025-01/20250114T040000Z.jsonl
func archivePath(prefix string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s%s/%s.jsonl", prefix, at.Format("2006-01"), at.Format("20060102T150405Z"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"bimcvprep/internal/archive"
	"bimcvprep/internal/catalog"
	"bimcvprep/internal/config"
	"bimcvprep/internal/dicomtags"
	"bimcvprep/internal/faults"
	"bimcvprep/internal/geometry"
	"bimcvprep/internal/grouping"
	"bimcvprep/internal/imageio"
	"bimcvprep/internal/layout"
	"bimcvprep/internal/logging"
	"bimcvprep/internal/preflight"
	"bimcvprep/internal/scratch"
	"bimcvprep/internal/series"
)

// LockFileName is created in the prepared root while a run holds it.
const LockFileName = ".bimcvprep.lock"

// Skip reasons recorded besides the fault labels.
const (
	ReasonNoImage     = "no_image"
	ReasonColorStill  = "color_still"
	ReasonBlankVolume = "blank_volume"
)

// ErrLocked reports another run holding the prepared root.
var ErrLocked = errors.New("prepared directory is locked by another run")

// Options configures a Pipeline.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Catalog is optional; without it the aggregates cover only this run.
	Catalog *catalog.Store
	// Resolver overrides the DICOM dictionary built from the config.
	Resolver dicomtags.Resolver
}

// Pipeline prepares the dataset described by its config.
type Pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *catalog.Store
	reader     *series.Reader
	normalizer *geometry.Normalizer
	writer     *layout.Writer
}

// New wires a Pipeline from opts.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	cfg := opts.Config
	logger := logging.NewComponentLogger(opts.Logger, "pipeline")

	resolver := opts.Resolver
	if resolver == nil {
		if len(cfg.Series.TagOverrides) > 0 {
			resolver = dicomtags.NewDictionary(cfg.Series.TagOverrides)
		} else {
			resolver = dicomtags.Default()
		}
	}

	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		store:  opts.Catalog,
		reader: series.NewReader(resolver),
		normalizer: geometry.NewNormalizer(geometry.Options{
			Table:  geometry.NewRotationTable(cfg.Normalization.RotationTable),
			Rotate: cfg.Normalization.RotateCT,
			Trim:   cfg.Normalization.TrimCT,
			Logger: opts.Logger,
		}),
		writer: layout.NewWriter(cfg.Paths.PreparedDir, opts.Logger),
	}, nil
}

// Run performs one preparation pass. The returned Summary is non-nil whenever
// the run got past its setup, including runs that stopped on a fatal error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	cfg := p.cfg
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if err := preflight.Failed(preflight.RunAll(ctx, cfg)); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(cfg.Paths.PreparedDir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	shards, err := archive.DiscoverShards(cfg.Paths.ArchiveDir, cfg.Extraction.ShardPattern)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)
	summary := newSummary(runID)
	summary.Shards = len(shards)

	work, err := scratch.NewRun(cfg.Paths.ScratchDir, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := work.Close(); err != nil {
			logging.WarnWithContext(logger, "scratch cleanup failed", "scratch_cleanup_failed",
				logging.String("path", work.Dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run bimcvprep scratch clean"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}()

	if err := p.writer.Prepare(); err != nil {
		return nil, err
	}
	if p.store != nil {
		if err := p.store.BeginRun(ctx, runID, len(shards)); err != nil {
			return nil, err
		}
	}

	logger.Info("preparation started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int("shards", len(shards)),
		logging.String("archive_dir", cfg.Paths.ArchiveDir),
		logging.String("prepared_dir", cfg.Paths.PreparedDir),
	)

	run := &runState{
		Pipeline: p,
		ctx:      ctx,
		logger:   logger,
		summary:  summary,
	}
	runErr := run.processSessions(archive.NewExtractor(archive.Options{
		ScratchDir:   work.Dir,
		OnShardError: cfg.Extraction.OnShardError,
		Logger:       logger,
	}), shards)

	if runErr == nil {
		runErr = p.writeIndex(ctx, run.entries)
	}

	summary.Duration = time.Since(start)
	if p.store != nil {
		totals := catalog.RunTotals{
			Sessions: summary.Sessions,
			Written:  summary.Written,
			Skipped:  summary.SkippedTotal(),
			Failed:   summary.Failed,
		}
		if err := p.store.FinishRun(context.WithoutCancel(ctx), runID, totals, runErr); err != nil {
			logging.WarnWithContext(logger, "failed to record run result", "catalog_update_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "catalog shows the run as running"),
			)
		}
	}

	if runErr != nil {
		logging.ErrorWithContext(logger, "preparation stopped", "run_failed",
			logging.Error(runErr),
			logging.String("reason", faults.Reason(runErr)),
			logging.Int("sessions", summary.Sessions),
			logging.Int("written", summary.Written),
		)
		return summary, runErr
	}
	logger.Info("preparation finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("sessions", summary.Sessions),
		logging.Int("written", summary.Written),
		logging.Int("skipped", summary.SkippedTotal()),
		logging.Int("failed", summary.Failed),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// writeIndex rebuilds the aggregates from the catalog when one is attached so
// earlier runs stay indexed, otherwise from this run's entries.
func (p *Pipeline) writeIndex(ctx context.Context, entries []layout.Entry) error {
	if p.store != nil {
		records, err := p.store.AllSeries(ctx)
		if err != nil {
			return err
		}
		entries = make([]layout.Entry, 0, len(records))
		for _, rec := range records {
			entries = append(entries, layout.Entry{
				UID:       rec.UID,
				SubjectID: rec.SubjectID,
				SessionID: rec.SessionID,
				Modality:  rec.Modality,
			})
		}
	}
	return p.writer.WriteIndex(layout.BuildIndex(entries))
}

// runState carries the mutable state of one Run.
type runState struct {
	*Pipeline
	ctx     context.Context
	logger  *slog.Logger
	summary *Summary
	entries []layout.Entry
}

func (r *runState) processSessions(ex *archive.Extractor, shards []string) error {
	for sess, err := range ex.Sessions(r.ctx, shards) {
		if err != nil {
			return err
		}
		r.summary.Sessions++
		if err := r.processSession(sess); err != nil {
			return err
		}
	}
	return nil
}

func (r *runState) processSession(sess *archive.Session) error {
	ctx := logging.WithSession(r.ctx, sess.SessionID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("processing session",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String("root", sess.Root),
		logging.Strings("shards", sess.Shards),
		logging.Int("files", sess.Files),
		logging.Int("sessions_done", r.summary.Sessions-1),
	)

	for desc, err := range grouping.Group(sess.Dir, logger) {
		if err != nil {
			err = fmt.Errorf("session %s: %w", sess.Root, err)
			if faults.Classify(err) == faults.Fatal {
				return err
			}
			r.fail(logger, sess.Root, err)
			return nil
		}
		if err := r.processSeries(ctx, logger, desc); err != nil {
			return err
		}
	}
	return nil
}

// processSeries handles one descriptor. Only fatal errors are returned.
func (r *runState) processSeries(ctx context.Context, logger *slog.Logger, desc grouping.Descriptor) error {
	logger = logger.With(logging.String(logging.FieldSeries, desc.UID))
	if err := ctx.Err(); err != nil {
		return err
	}
	if !desc.HasImage() {
		r.skip(logger, desc.UID, ReasonNoImage, "tags only")
		return nil
	}

	s, err := r.reader.Read(desc)
	if err != nil {
		switch faults.Classify(err) {
		case faults.Fatal:
			return err
		case faults.Skip:
			r.skip(logger, desc.UID, faults.Reason(err), err.Error())
		default:
			r.fail(logger, desc.UID, err)
		}
		return nil
	}

	if r.cfg.Series.SkipColorStills && imageio.IsColor(s.Image) {
		r.skip(logger, s.UID, ReasonColorStill, fmt.Sprintf("shape %v", s.Image.Shape()))
		return nil
	}

	if s.IsCT() && (r.cfg.Normalization.RotateCT || r.cfg.Normalization.TrimCT) {
		if err := r.normalizer.Normalize(s); err != nil {
			if !errors.Is(err, geometry.ErrNotVolume) {
				r.fail(logger, s.UID, err)
				return nil
			}
			logging.WarnWithContext(logger, "ct series is not a volume, writing it unnormalized", "normalize_skipped",
				logging.Any("shape", s.Image.Shape()),
				logging.String(logging.FieldImpact, "series written without rotation or trimming"),
			)
		}
		if s.Image.Len() == 0 {
			r.skip(logger, s.UID, ReasonBlankVolume, "every slice was trimmed")
			return nil
		}
	}

	dir, err := r.writer.WriteSeries(s)
	if err != nil {
		r.fail(logger, s.UID, err)
		return nil
	}
	if r.store != nil {
		if err := r.store.RecordSeries(ctx, catalog.SeriesRecord{
			UID:       s.UID,
			SubjectID: s.SubjectID,
			SessionID: s.SessionID,
			Modality:  s.Modality,
			DType:     s.Image.DType().String(),
			Shape:     s.Image.Shape(),
			Spacing:   s.Spacing,
			Source:    desc.ImagePath,
			RunID:     r.summary.RunID,
		}); err != nil {
			return fmt.Errorf("record series %s: %w", s.UID, err)
		}
	}
	r.entries = append(r.entries, layout.Entry{
		UID:       s.UID,
		SubjectID: s.SubjectID,
		SessionID: s.SessionID,
		Modality:  s.Modality,
	})
	r.summary.Written++
	logger.Info("series written",
		logging.String(logging.FieldEventType, "series_written"),
		logging.String("modality", s.Modality),
		logging.String("dtype", s.Image.DType().String()),
		logging.Any("shape", s.Image.Shape()),
		logging.String("path", dir),
	)
	return nil
}

func (r *runState) skip(logger *slog.Logger, item, reason, detail string) {
	r.summary.Skipped[reason]++
	logger.Info("series skipped",
		logging.String(logging.FieldEventType, "series_skipped"),
		logging.String("reason", reason),
		logging.String("detail", detail),
	)
	r.recordSkip(logger, item, reason, detail)
}

func (r *runState) fail(logger *slog.Logger, item string, err error) {
	r.summary.Failed++
	logging.WarnWithContext(logger, "item failed, continuing", "item_failed",
		logging.String("item", item),
		logging.String("reason", faults.Reason(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the source files in the archive"),
	)
	r.recordSkip(logger, item, "failed:"+faults.Reason(err), err.Error())
}

func (r *runState) recordSkip(logger *slog.Logger, item, reason, detail string) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordSkip(r.ctx, r.summary.RunID, item, reason, detail); err != nil {
		logger.Debug("failed to record skip", logging.Error(err))
	}
}

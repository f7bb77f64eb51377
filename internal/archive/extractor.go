package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"

	"bimcvprep/internal/faults"
	"bimcvprep/internal/logging"
)

// Shard error policies.
const (
	OnShardErrorSkip  = "skip"
	OnShardErrorAbort = "abort"
)

// Options configures an Extractor.
type Options struct {
	// ScratchDir is the process-private root session subtrees are created
	// under. Empty means the system temp directory.
	ScratchDir string
	// OnShardError is OnShardErrorSkip (default) or OnShardErrorAbort.
	OnShardError string
	Logger       *slog.Logger
}

// Extractor yields session subtrees from a set of shards.
type Extractor struct {
	scratchDir   string
	onShardError string
	logger       *slog.Logger
}

// Session is one materialized session subtree. Dir is valid only until the
// consumer advances the iteration that produced it.
type Session struct {
	// Root is the session path inside the archives, e.g. sub-S1/ses-E1.
	Root      string
	SubjectID string
	SessionID string
	// Dir holds the session's files at their paths relative to Root.
	Dir string
	// Shards lists the base names of the shards that contributed files.
	Shards []string
	Files  int
}

// NewExtractor builds an Extractor.
func NewExtractor(opts Options) *Extractor {
	policy := opts.OnShardError
	if policy == "" {
		policy = OnShardErrorSkip
	}
	return &Extractor{
		scratchDir:   opts.ScratchDir,
		onShardError: policy,
		logger:       logging.NewComponentLogger(opts.Logger, "archive"),
	}
}

func (e *Extractor) abortOnShardError() bool {
	return e.onShardError == OnShardErrorAbort
}

// Sessions returns a single-pass sequence of sessions in shard order, then
// member order. Each Session's directory is deleted before the next one is
// produced and when iteration stops early. Errors are yielded once, after
// which the sequence ends.
func (e *Extractor) Sessions(ctx context.Context, shards []string) iter.Seq2[*Session, error] {
	return func(yield func(*Session, error) bool) {
		plans, err := e.buildIndex(ctx, shards)
		if err != nil {
			yield(nil, err)
			return
		}

		cursors := newCursorSet(shards)
		defer cursors.Close()

		for _, plan := range plans {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			sess, err := e.materialize(ctx, plan, cursors)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(nil, ctxErr)
					return
				}
				if e.abortOnShardError() {
					yield(nil, err)
					return
				}
				logging.WarnWithContext(e.logger, "session extraction failed, skipping", "session_skipped",
					logging.String(logging.FieldSession, plan.root),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "re-download the shards listed for this session"),
				)
				continue
			}
			if !e.hand(sess, yield) {
				return
			}
		}
	}
}

// hand yields sess and removes its directory on every exit path.
func (e *Extractor) hand(sess *Session, yield func(*Session, error) bool) bool {
	defer func() {
		if err := os.RemoveAll(sess.Dir); err != nil {
			logging.WarnWithContext(e.logger, "session subtree cleanup failed", "scratch_cleanup_failed",
				logging.String(logging.FieldSession, sess.Root),
				logging.String("path", sess.Dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}()
	return yield(sess, nil)
}

func (e *Extractor) materialize(ctx context.Context, plan *sessionPlan, cursors *cursorSet) (*Session, error) {
	dir, err := os.MkdirTemp(e.scratchDir, "session-")
	if err != nil {
		return nil, fmt.Errorf("create session subtree: %w", err)
	}

	files := slices.Clone(plan.files)
	slices.SortStableFunc(files, func(a, b plannedFile) int {
		if a.shard != b.shard {
			return a.shard - b.shard
		}
		return a.ordinal - b.ordinal
	})

	for _, f := range files {
		if err := e.copyMember(ctx, cursors, dir, f); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}

	sess := &Session{
		Root:      plan.root,
		SessionID: path.Base(plan.root),
		SubjectID: path.Base(path.Dir(plan.root)),
		Dir:       dir,
		Files:     len(files),
	}
	for _, i := range plan.shards {
		sess.Shards = append(sess.Shards, filepath.Base(cursors.paths[i]))
	}
	e.logger.Debug("session materialized",
		logging.String(logging.FieldSession, sess.Root),
		logging.Int("files", sess.Files),
		logging.Strings("shards", sess.Shards),
	)
	return sess, nil
}

func (e *Extractor) copyMember(ctx context.Context, cursors *cursorSet, dir string, f plannedFile) error {
	sr, err := cursors.seek(ctx, f.shard, f.ordinal, f.name)
	if err != nil {
		return err
	}
	target := filepath.Join(dir, filepath.FromSlash(f.rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", f.rel, err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.rel, err)
	}
	n, copyErr := io.Copy(out, sr.tr)
	closeErr := out.Close()
	if copyErr != nil {
		cursors.drop(f.shard)
		return faults.Wrap(faults.ErrMalformedArchive, "archive", "extract member", f.name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", f.rel, closeErr)
	}
	if n != f.size {
		cursors.drop(f.shard)
		return faults.Wrap(faults.ErrMalformedArchive, "archive", "extract member", fmt.Sprintf("%s: copied %d of %d bytes", f.name, n, f.size), nil)
	}
	return nil
}

// cursorSet keeps one forward-only reader per shard. A member behind the
// cursor forces the shard to be reopened.
type cursorSet struct {
	paths   []string
	readers []*shardReader
}

func newCursorSet(paths []string) *cursorSet {
	return &cursorSet{paths: paths, readers: make([]*shardReader, len(paths))}
}

func (c *cursorSet) seek(ctx context.Context, shard, ordinal int, name string) (*shardReader, error) {
	sr := c.readers[shard]
	if sr == nil || sr.next > ordinal {
		c.drop(shard)
		var err error
		sr, err = openShard(c.paths[shard])
		if err != nil {
			return nil, faults.Wrap(faults.ErrMalformedArchive, "archive", "reopen shard", c.paths[shard], err)
		}
		c.readers[shard] = sr
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := sr.Next()
		if err != nil {
			c.drop(shard)
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("member %s no longer present", name)
			}
			return nil, faults.Wrap(faults.ErrMalformedArchive, "archive", "seek member", c.paths[shard], err)
		}
		if sr.next-1 < ordinal {
			continue
		}
		got, err := normalizeMember(hdr.Name)
		if err != nil || got != name {
			c.drop(shard)
			return nil, faults.Wrap(faults.ErrMalformedArchive, "archive", "seek member", fmt.Sprintf("%s: expected %s at position %d, found %s", c.paths[shard], name, ordinal, hdr.Name), nil)
		}
		return sr, nil
	}
}

func (c *cursorSet) drop(shard int) {
	if sr := c.readers[shard]; sr != nil {
		sr.Close()
		c.readers[shard] = nil
	}
}

func (c *cursorSet) Close() {
	for i := range c.readers {
		c.drop(i)
	}
}

package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"path/filepath"

	"bimcvprep/internal/faults"
	"bimcvprep/internal/logging"
)

// plannedFile is one member to copy into a session subtree.
type plannedFile struct {
	shard   int
	ordinal int
	name    string
	rel     string
	size    int64
}

// sessionPlan is everything the index pass learned about one session root.
type sessionPlan struct {
	root   string
	shards []int
	files  []plannedFile
}

func (p *sessionPlan) addShard(i int) {
	for _, s := range p.shards {
		if s == i {
			return
		}
	}
	p.shards = append(p.shards, i)
}

type shardIndex struct {
	roots []string
	files []indexedMember
}

type indexedMember struct {
	ordinal int
	name    string
	size    int64
}

// buildIndex scans every shard's headers and returns the session plans in
// discovery order. Shards that fail to scan are skipped or abort the run
// according to the policy.
func (e *Extractor) buildIndex(ctx context.Context, shards []string) ([]*sessionPlan, error) {
	plans := make(map[string]*sessionPlan)
	var order []*sessionPlan

	for i, shard := range shards {
		shardLogger := e.logger.With(logging.String(logging.FieldShard, filepath.Base(shard)))
		idx, err := scanShard(ctx, shard)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if e.abortOnShardError() {
				return nil, err
			}
			logging.WarnWithContext(shardLogger, "shard unreadable, skipping", "shard_skipped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "re-download the shard and verify its checksum"),
				logging.String(logging.FieldImpact, "sessions stored only in this shard are not prepared"),
			)
			continue
		}

		for _, root := range idx.roots {
			plan, ok := plans[root]
			if !ok {
				plan = &sessionPlan{root: root}
				plans[root] = plan
				order = append(order, plan)
			}
			plan.addShard(i)
		}

		orphans := 0
		for _, m := range idx.files {
			root, rel, ok := matchRoot(m.name, idx.roots)
			if !ok {
				orphans++
				shardLogger.Debug("archive member outside any session",
					logging.String("member", m.name),
					logging.String("reason", faults.ErrMissingSessionRoot.Error()),
				)
				continue
			}
			plans[root].files = append(plans[root].files, plannedFile{
				shard:   i,
				ordinal: m.ordinal,
				name:    m.name,
				rel:     rel,
				size:    m.size,
			})
		}
		if orphans > 0 {
			logging.WarnWithContext(shardLogger, "archive members without a session root dropped", "missing_session_root",
				logging.Int("members", orphans),
				logging.String(logging.FieldErrorHint, "run with debug logging to list the members"),
				logging.String(logging.FieldImpact, "files dropped"),
			)
		}
		shardLogger.Info("shard indexed",
			logging.Int("sessions", len(idx.roots)),
			logging.Int("files", len(idx.files)),
			logging.String(logging.FieldEventType, "shard_indexed"),
		)
	}
	return order, nil
}

// scanShard reads every header of one shard without touching file bodies
// beyond what the tar reader must skip.
func scanShard(ctx context.Context, shard string) (*shardIndex, error) {
	sr, err := openShard(shard)
	if err != nil {
		return nil, faults.Wrap(faults.ErrMalformedArchive, "archive", "open shard", shard, err)
	}
	defer sr.Close()

	idx := &shardIndex{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return idx, nil
		}
		if err != nil {
			return nil, faults.Wrap(faults.ErrMalformedArchive, "archive", "index shard", shard, err)
		}
		ordinal := sr.next - 1
		name, err := normalizeMember(hdr.Name)
		if err != nil {
			return nil, faults.Wrap(faults.ErrMalformedArchive, "archive", "index shard", shard, err)
		}
		if name == "" {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if isSessionRoot(name) {
				idx.roots = append(idx.roots, name)
			}
		case tar.TypeReg:
			idx.files = append(idx.files, indexedMember{ordinal: ordinal, name: name, size: hdr.Size})
		}
	}
}

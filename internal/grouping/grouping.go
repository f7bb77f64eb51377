// Package grouping turns the loose files of one session subtree into raw
// series descriptors: an image file plus its optional JSON tag sidecar,
// paired by their shared path once the known suffix is stripped.
package grouping

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"bimcvprep/internal/faults"
	"bimcvprep/internal/logging"
)

// KnownSuffixes lists every file suffix a session may contain. Order
// matters: multi-dot suffixes are tried first.
var KnownSuffixes = []string{".nii.gz", ".json", ".tsv", ".png"}

const (
	tagsSuffix     = ".json"
	manifestSuffix = "_scans.tsv"
	subjectMarker  = "sub-"
	sessionMarker  = "_ses-"
)

// Descriptor names the files of one raw series. Paths are absolute.
type Descriptor struct {
	// UID is the series identifier, the base name of Key.
	UID string
	// Key is the slash-separated path relative to the session root with the
	// suffix stripped.
	Key       string
	ImagePath string
	TagsPath  string
}

// HasImage reports whether the series carries pixel data.
func (d Descriptor) HasImage() bool { return d.ImagePath != "" }

// StripSuffix returns name without its known suffix and the suffix itself.
// ok is false when no known suffix matches.
func StripSuffix(name string) (key, suffix string, ok bool) {
	for _, s := range KnownSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s), s, true
		}
	}
	return name, "", false
}

// Group lists sessionRoot recursively and yields one descriptor per valid
// group in lexical key order. Every file is checked before anything is
// yielded, so an unrecognized suffix fails the session up front.
func Group(sessionRoot string, logger *slog.Logger) iter.Seq2[Descriptor, error] {
	logger = logging.NewComponentLogger(logger, "grouping")
	return func(yield func(Descriptor, error) bool) {
		groups, err := collect(sessionRoot)
		if err != nil {
			yield(Descriptor{}, err)
			return
		}

		keys := make([]string, 0, len(groups))
		for key := range groups {
			keys = append(keys, key)
		}
		slices.Sort(keys)

		for _, key := range keys {
			members := groups[key]
			desc, keep, err := classify(sessionRoot, key, members)
			if err != nil {
				logging.WarnWithContext(logger, "series group skipped", "group_skipped",
					logging.String("key", key),
					logging.Strings("files", members),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "inspect the session for duplicate series files"),
				)
				continue
			}
			if !keep {
				continue
			}
			if !yield(desc, nil) {
				return
			}
		}
	}
}

func collect(root string) (map[string][]string, error) {
	groups := make(map[string][]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		key, _, ok := StripSuffix(rel)
		if !ok {
			return faults.Wrap(faults.ErrUnrecognizedExtension, "grouping", "list session", rel, nil)
		}
		groups[key] = append(groups[key], rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", root, err)
	}
	for key := range groups {
		slices.Sort(groups[key])
	}
	return groups, nil
}

// classify applies the group-shape rules. keep is false for groups dropped
// silently; err is set for groups dropped with a warning.
func classify(root, key string, members []string) (Descriptor, bool, error) {
	desc := Descriptor{UID: path.Base(key), Key: key}
	switch len(members) {
	case 1:
		if isManifest(members[0]) {
			return Descriptor{}, false, nil
		}
		if strings.HasSuffix(members[0], tagsSuffix) {
			desc.TagsPath = filepath.Join(root, filepath.FromSlash(members[0]))
		} else {
			desc.ImagePath = filepath.Join(root, filepath.FromSlash(members[0]))
		}
		return desc, true, nil
	case 2:
		var tags, images []string
		for _, m := range members {
			if strings.HasSuffix(m, tagsSuffix) {
				tags = append(tags, m)
			} else {
				images = append(images, m)
			}
		}
		if len(tags) != 1 || len(images) != 1 {
			return Descriptor{}, false, faults.Wrap(faults.ErrAmbiguousGroup, "grouping", "pair files", "two image candidates", nil)
		}
		desc.TagsPath = filepath.Join(root, filepath.FromSlash(tags[0]))
		desc.ImagePath = filepath.Join(root, filepath.FromSlash(images[0]))
		return desc, true, nil
	default:
		return Descriptor{}, false, faults.Wrap(faults.ErrAmbiguousGroup, "grouping", "pair files", fmt.Sprintf("%d files share the key", len(members)), nil)
	}
}

// isManifest matches the per-session scans table, e.g.
// sub-S01_ses-E01_scans.tsv sitting directly under the session root.
func isManifest(rel string) bool {
	if strings.Contains(rel, "/") || !strings.HasSuffix(rel, manifestSuffix) {
		return false
	}
	return strings.Contains(rel, subjectMarker) && strings.Contains(rel, sessionMarker)
}

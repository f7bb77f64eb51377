package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"bimcvprep/internal/archive"
	"bimcvprep/internal/geometry"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatableDirectory passes for a writable directory and for a missing
// one whose nearest existing ancestor is writable.
func CheckCreatableDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckShards verifies that at least one shard matches pattern under dir.
func CheckShards(dir, pattern string) Result {
	const name = "Archive shards"
	shards, err := archive.DiscoverShards(dir, pattern)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("error: %v", err)}
	}
	if len(shards) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("no files match %q in %s", pattern, dir)}
	}
	for _, shard := range shards {
		if err := unix.Access(shard, unix.R_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", filepath.Base(shard), err)}
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d shard(s) matching %q", len(shards), pattern)}
}

// CheckRotationTable parses the rotation table and reports its row count.
func CheckRotationTable(path string) Result {
	const name = "Rotation table"
	if path == "" {
		return Result{Name: name, Detail: "not configured (set normalization.rotation_table or BIMCVPREP_ROTATION_TABLE)"}
	}
	table := geometry.NewRotationTable(path)
	if err := table.Load(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("error: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", path, table.Len())}
}

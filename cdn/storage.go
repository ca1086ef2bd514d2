package cdn

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// writeAtomic stores data as dir/name through a temporary dot-file, so the
// final name never refers to a partially written image.
func writeAtomic(dir, name string, data []byte) error {
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s-%s.tmp", name, uuid.NewString()))

	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// listImages returns the visible entries of a recipe directory.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}

	slices.SortFunc(names, compareImageNames)
	return names, nil
}

// compareImageNames orders the icon first, then sequence numbers ascending,
// then any other name lexicographically.
func compareImageNames(a, b string) int {
	if a == b {
		return 0
	}
	if a == IconName {
		return -1
	}
	if b == IconName {
		return 1
	}

	seqA, errA := parseSequence(a)
	seqB, errB := parseSequence(b)
	switch {
	case errA == nil && errB == nil:
		if seqA < seqB {
			return -1
		}
		return 1
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// parseSequence accepts the canonical decimal form used for image names.
func parseSequence(name string) (uint32, error) {
	seq, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, err
	}
	if strconv.FormatUint(seq, 10) != name {
		return 0, fmt.Errorf("cdn: non-canonical sequence '%s'", name)
	}

	return uint32(seq), nil
}

func formatSequence(seq uint32) string {
	return strconv.FormatUint(uint64(seq), 10)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func isExist(err error) bool {
	return errors.Is(err, fs.ErrExist)
}

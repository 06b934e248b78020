package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type MultipartSweepOptions struct {
	// StaleAfter is how long an upload may sit without activity before
	// it is swept.
	StaleAfter time.Duration
	// MaxRemovals caps removals per sweep; zero means unlimited.
	MaxRemovals int
}

type MultipartSweepResult struct {
	BucketsScanned   int
	UploadsScanned   int
	UploadsRemoved   int
	TempFilesRemoved int
	SkippedByLimit   int
}

type sweepCandidate struct {
	bucket       string
	uploadID     string
	uploadDir    string
	lastActivity time.Time
}

// SweepStaleMultipartUploads removes in-progress uploads whose latest
// activity (initiation or any part write) is older than StaleAfter.
// Oldest uploads go first when a removal cap applies.
func (b *FSBackend) SweepStaleMultipartUploads(ctx context.Context, now time.Time, opts MultipartSweepOptions) (MultipartSweepResult, error) {
	if opts.StaleAfter <= 0 {
		return MultipartSweepResult{}, ErrInvalidRequest
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	buckets, err := b.ListBuckets(ctx)
	if err != nil {
		return MultipartSweepResult{}, err
	}

	result := MultipartSweepResult{}
	var candidates []sweepCandidate
	var errs []error

	for _, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.BucketsScanned++

		entries, readErr := os.ReadDir(b.uploadRoot(bucket.Name))
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			errs = append(errs, fmt.Errorf("list multipart root for bucket %q: %w", bucket.Name, readErr))
			continue
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if !entry.IsDir() {
				continue
			}
			result.UploadsScanned++

			uploadID := entry.Name()
			uploadDir := b.uploadDir(bucket.Name, uploadID)

			removed, cleanupErr := removeStaleTempParts(uploadDir, now, opts.StaleAfter)
			result.TempFilesRemoved += removed
			if cleanupErr != nil {
				errs = append(errs, fmt.Errorf("cleanup temp parts %q/%q: %w", bucket.Name, uploadID, cleanupErr))
			}

			lastActivity, actErr := latestUploadActivity(uploadDir)
			if actErr != nil {
				if os.IsNotExist(actErr) {
					continue
				}
				errs = append(errs, fmt.Errorf("assess upload %q/%q: %w", bucket.Name, uploadID, actErr))
				continue
			}
			if now.Sub(lastActivity) < opts.StaleAfter {
				continue
			}
			candidates = append(candidates, sweepCandidate{
				bucket:       bucket.Name,
				uploadID:     uploadID,
				uploadDir:    uploadDir,
				lastActivity: lastActivity,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastActivity.Equal(candidates[j].lastActivity) {
			if candidates[i].bucket == candidates[j].bucket {
				return candidates[i].uploadID < candidates[j].uploadID
			}
			return candidates[i].bucket < candidates[j].bucket
		}
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.MaxRemovals > 0 && result.UploadsRemoved >= opts.MaxRemovals {
			result.SkippedByLimit++
			continue
		}
		if removeErr := os.RemoveAll(candidate.uploadDir); removeErr != nil {
			errs = append(errs, fmt.Errorf("remove upload %q/%q: %w", candidate.bucket, candidate.uploadID, removeErr))
			continue
		}
		b.removeEmptyUploadRoot(candidate.bucket)
		result.UploadsRemoved++
	}

	return result, errors.Join(errs...)
}

// latestUploadActivity finds the newest mtime under an upload dir so a
// slow but active upload is not swept mid-flight.
func latestUploadActivity(uploadDir string) (time.Time, error) {
	info, err := os.Stat(uploadDir)
	if err != nil {
		return time.Time{}, err
	}
	latest := info.ModTime().UTC()
	walkErr := filepath.WalkDir(uploadDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		i, err := d.Info()
		if err != nil {
			return err
		}
		if mod := i.ModTime().UTC(); mod.After(latest) {
			latest = mod
		}
		return nil
	})
	if walkErr != nil {
		return time.Time{}, walkErr
	}
	return latest, nil
}

// removeStaleTempParts deletes abandoned part temp files left by
// interrupted writers.
func removeStaleTempParts(uploadDir string, now time.Time, staleAfter time.Duration) (int, error) {
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "part-") || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			errs = append(errs, infoErr)
			continue
		}
		if now.Sub(info.ModTime().UTC()) < staleAfter {
			continue
		}
		if err := os.Remove(filepath.Join(uploadDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Purge deletes sessions whose last update is older than olderThan and
// returns how many were removed. A DB purges with a single statement; other
// backends are listed and deleted one by one.
func Purge(ctx context.Context, b Backend, olderThan time.Duration) (int64, error) {
	if db, ok := b.(*DB); ok {
		return db.PurgeOldSessions(olderThan)
	}

	records, err := b.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge old sessions: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)

	var n int64
	var errs []error
	for _, r := range records {
		if !r.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := b.Delete(ctx, r.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

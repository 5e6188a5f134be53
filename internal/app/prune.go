package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakoutwatch/internal/storage"
)

// Prune deletes alert records older than olderThan, falling back to alerting.retention.
func (a *App) Prune(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		olderThan = a.Config.Alerting.Retention
	}
	if olderThan <= 0 {
		return errors.New("no retention configured; pass --older-than")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot prune alerts")
	}
	defer closeStore()

	cutoff, err := pruneAlerts(ctx, store, olderThan, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "deleted alerts fired before %s\n", cutoff.Format(time.RFC3339))
	return nil
}

func pruneAlerts(ctx context.Context, store storage.AlertStore, olderThan time.Duration, now time.Time) (time.Time, error) {
	cutoff := now.Add(-olderThan)
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return time.Time{}, err
	}
	return cutoff, nil
}

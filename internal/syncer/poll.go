// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/pkg/errutil"
)

// PollListener is a Listener for stores without change notifications. It
// loads each key on an interval and reports versions it has not seen.
type PollListener struct {
	store    store.BlobStore
	interval time.Duration
	keys     []string
}

// NewPollListener polls keys of st every interval.
func NewPollListener(st store.BlobStore, interval time.Duration, keys ...string) *PollListener {
	return &PollListener{store: st, interval: interval, keys: keys}
}

// Listen implements Listener. The first poll only records the current
// versions; changes are reported from the second poll on.
func (l *PollListener) Listen(ctx context.Context) (<-chan string, error) {
	seen := make(map[string]int64, len(l.keys))
	for _, key := range l.keys {
		v, err := l.version(ctx, key)
		if err != nil {
			return nil, err
		}
		seen[key] = v
	}

	out := make(chan string, len(l.keys))
	go func() {
		defer close(out)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, key := range l.keys {
				v, err := l.version(ctx, key)
				if err != nil {
					if ctx.Err() == nil {
						errutil.LogErrorContext(ctx, slog.Default(), "polling document version failed", err)
					}
					continue
				}
				if v == seen[key] {
					continue
				}
				seen[key] = v
				select {
				case out <- fmt.Sprintf("%s:%d", key, v):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (l *PollListener) version(ctx context.Context, key string) (int64, error) {
	doc, err := l.store.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}

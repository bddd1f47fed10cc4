// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Notification channel names.
const (
	// EnvelopeChannel carries sync envelopes between processes.
	EnvelopeChannel = "questkeeper_sync"
	// DocumentChannel is raised by the quest_documents trigger on every write.
	DocumentChannel = "questkeeper_documents"
)

// maxNotifyPayload is PostgreSQL's NOTIFY payload limit minus headroom.
const maxNotifyPayload = 7900

// Listener abstracts PostgreSQL LISTEN for testability. The returned
// channel yields notification payloads and closes when ctx is done.
type Listener interface {
	Listen(ctx context.Context) (<-chan string, error)
}

// PGListener listens on one PostgreSQL notification channel over a
// dedicated connection and reconnects with exponential backoff.
type PGListener struct {
	connString string
	channel    string
	backoff    func() retry.Backoff
}

// NewPGListener creates a listener for channel.
func NewPGListener(connString, channel string) *PGListener {
	return &PGListener{
		connString: connString,
		channel:    channel,
		backoff: func() retry.Backoff {
			return retry.WithCappedDuration(30*time.Second, retry.NewExponential(100*time.Millisecond))
		},
	}
}

// Listen implements Listener. The first connection is made synchronously
// so configuration errors surface to the caller.
func (l *PGListener) Listen(ctx context.Context) (<-chan string, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan string)
	go l.run(ctx, conn, out)
	return out, nil
}

func (l *PGListener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return nil, oops.In("syncer").Code("LISTEN_FAILED").With("channel", l.channel).Wrap(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, oops.In("syncer").Code("LISTEN_FAILED").With("channel", l.channel).Wrap(err)
	}
	return conn, nil
}

func (l *PGListener) run(ctx context.Context, conn *pgx.Conn, out chan<- string) {
	defer close(out)
	for {
		n, err := conn.WaitForNotification(ctx)
		if err == nil {
			select {
			case out <- n.Payload:
			case <-ctx.Done():
				_ = conn.Close(context.Background())
				return
			}
			continue
		}
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		slog.Warn("notification listener lost connection, reconnecting",
			"channel", l.channel, "error", err)

		err = retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
			c, err := l.connect(ctx)
			if err != nil {
				return retry.RetryableError(err)
			}
			conn = c
			return nil
		})
		if err != nil {
			return
		}
		slog.Info("notification listener reconnected", "channel", l.channel)
	}
}

// execer is the pool method PGChannel publishes with.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGChannel is a Channel over PostgreSQL NOTIFY. Incoming notifications are
// fanned out to local subscribers through a Hub.
type PGChannel struct {
	db       execer
	listener Listener
	hub      *Hub
	wg       sync.WaitGroup
}

// NewPGChannel publishes through db and receives through listener.
func NewPGChannel(db execer, listener Listener) *PGChannel {
	return &PGChannel{db: db, listener: listener, hub: NewHub()}
}

// Hub exposes the local fan-out, mainly to hook drop accounting.
func (c *PGChannel) Hub() *Hub { return c.hub }

// Start begins receiving. It returns once listening is established.
func (c *PGChannel) Start(ctx context.Context) error {
	ch, err := c.listener.Listen(ctx)
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go c.receive(ctx, ch)
	return nil
}

// Wait blocks until the receive loop exits, then closes the local hub.
func (c *PGChannel) Wait() {
	c.wg.Wait()
	c.hub.Close()
}

func (c *PGChannel) receive(ctx context.Context, ch <-chan string) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(payload), &env); err != nil {
				slog.Warn("ignoring malformed sync notification", "error", err)
				continue
			}
			if err := c.hub.Publish(ctx, env); err != nil {
				return
			}
		}
	}
}

// Publish implements Channel. Envelopes too large for NOTIFY are sent
// without their payload and marked truncated.
func (c *PGChannel) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return oops.In("syncer").Code("ENCODE_FAILED").With("kind", env.Kind).Wrap(err)
	}
	if len(data) > maxNotifyPayload {
		env.Payload = nil
		env.Truncated = true
		if data, err = json.Marshal(env); err != nil {
			return oops.In("syncer").Code("ENCODE_FAILED").With("kind", env.Kind).Wrap(err)
		}
	}
	if _, err := c.db.Exec(ctx, "SELECT pg_notify($1, $2)", EnvelopeChannel, string(data)); err != nil {
		return oops.In("syncer").Code("PUBLISH_FAILED").With("kind", env.Kind).Wrap(err)
	}
	return nil
}

// Subscribe implements Channel.
func (c *PGChannel) Subscribe(fn func(Envelope)) func() {
	return c.hub.Subscribe(fn)
}

// DocumentChange is one committed write reported by the database.
type DocumentChange struct {
	Key     string
	Version int64
}

// ParseDocumentChange decodes a "key:version" notification payload.
func ParseDocumentChange(payload string) (DocumentChange, error) {
	key, v, ok := strings.Cut(payload, ":")
	if !ok || key == "" {
		return DocumentChange{}, oops.In("syncer").Code("DECODE_FAILED").With("payload", payload).Errorf("malformed document notification")
	}
	version, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return DocumentChange{}, oops.In("syncer").Code("DECODE_FAILED").With("payload", payload).Wrap(err)
	}
	return DocumentChange{Key: key, Version: version}, nil
}

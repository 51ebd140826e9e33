package conn

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// dialGroup collapses concurrent Dial calls for the same target into a
// single bring-up attempt; it is never consulted by the synchronous
// core, which has no concept of concurrent callers to begin with.
var dialGroup singleflight.Group

// WaitFunc blocks until peer's handshake has either completed or failed,
// returning an error in the latter case (including on ctx cancellation).
type WaitFunc func(ctx context.Context, peer *Peer) error

// Dial brings up a Peer for key (e.g. host followed by path), retrying the whole
// open-and-handshake attempt with exponential backoff if wait reports
// failure, and collapsing concurrent Dial calls sharing the same key
// into one underlying attempt.
func Dial(ctx context.Context, log *slog.Logger, key string, newPeer func() *Peer, wait WaitFunc) (*Peer, error) {
	v, err, shared := dialGroup.Do(key, func() (any, error) {
		var peer *Peer
		attempt := 0
		op := func() error {
			attempt++
			peer = newPeer()
			peer.Start(ctx)
			peer.Open()
			if err := wait(ctx, peer); err != nil {
				log.Warn("conn: handshake attempt failed", "key", key, "attempt", attempt, "error", err)
				peer.Stop()
				return err
			}
			return nil
		}
		bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		if err := backoff.Retry(op, bo); err != nil {
			return nil, err
		}
		return peer, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("conn: dial collapsed into an in-flight attempt", "key", key)
	}
	return v.(*Peer), nil
}

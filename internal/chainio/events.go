package chainio

import (
	"context"
	"encoding/json"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/listener"
)

// LatestBlock reads the chain's current tip height, satisfying
// listener.Source.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "chain_latestBlock")
	if err != nil {
		return 0, err
	}
	var out uint64
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, gerrors.Wrap("chainio.LatestBlock", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// EventsInRange reads every game-contract event in [fromBlock, toBlock],
// inclusive, satisfying listener.Source.
func (c *Client) EventsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]listener.ChainEvent, error) {
	raw, err := c.call(ctx, "chain_getEvents", fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	var out []listener.ChainEvent
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, gerrors.Wrap("chainio.EventsInRange", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// Subscribe opens a live event feed over the existing websocket
// connection, satisfying listener.Source. The returned channel is closed
// by Close; it stays open if the read loop exits on a connection error.
func (c *Client) Subscribe(ctx context.Context) (<-chan listener.ChainEvent, error) {
	if _, err := c.call(ctx, "chain_subscribeEvents"); err != nil {
		return nil, err
	}

	out := make(chan listener.ChainEvent, 64)

	c.mu.Lock()
	c.subs = append(c.subs, out)
	c.mu.Unlock()

	return out, nil
}

// dispatchEvent fans a decoded push notification out to every active
// subscriber; called from readLoop for a message with id 0. A message with
// a non-zero id that matches no pending call is dropped, not dispatched.
func (c *Client) dispatchEvent(raw json.RawMessage) {
	var ev listener.ChainEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Warnw("failed to decode pushed event", "err", err)
		return
	}

	c.mu.Lock()
	subs := append([]chan listener.ChainEvent(nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
			log.Warnw("subscriber channel full, dropping event", "kind", ev.Kind)
		}
	}
}

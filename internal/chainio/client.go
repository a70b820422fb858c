// Package chainio is the game server's one door onto the settlement
// chain (C4): typed reads of contract state and signed, operator-only
// writes. It bundles a persistent JSON-RPC-over-websocket connection and
// the operator's signing key behind a single value, the way
// chainregistry.go bundles a chain's IO/notifier/wallet trio behind one
// chainControl.
package chainio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gorilla/websocket"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/listener"
	"github.com/kalinbas/chain-assassin/internal/logging"
	"github.com/kalinbas/chain-assassin/internal/proof"
)

var log = logging.Named("CHIO")

// Config bundles everything a Client needs to talk to the settlement
// chain.
type Config struct {
	RPCUrl          string
	RPCWsUrl        string
	ContractAddress string
	ChainID         int64
	OperatorKey     *btcec.PrivateKey
}

// Client is a persistent JSON-RPC-over-websocket connection to the
// settlement chain, plus the operator key used to sign writes. It does not
// reconnect on its own; see Dial.
// Exactly one Client exists per process; internal/operator serializes all
// writes through it.
type Client struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	pending map[uint64]chan rpcResponse
	subs    []chan listener.ChainEvent

	closed  atomic.Bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

type rpcRequest struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Dial opens the websocket connection and starts the response dispatch
// loop. Reconnection on a stale socket is the listener's job (C6), not
// the client's; Dial gives the caller a fresh Client each time.
func Dial(cfg Config) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.RPCWsUrl, nil)
	if err != nil {
		return nil, gerrors.Wrap("chainio.Dial", gerrors.CodeRpcUnavailable, err)
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[uint64]chan rpcResponse),
		quit:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// operatorAddress derives the operator's own address from its signing
// key the same way proof.AddressFromPubKey derives a player's address
// from a recovered public key.
func (c *Client) operatorAddress() string {
	return proof.AddressFromPubKey(c.cfg.OperatorKey.PubKey())
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			if !c.closed.Load() {
				log.Warnw("rpc read loop stopped", "err", err)
			}
			c.failAllPending(err)
			return
		}

		if resp.ID == 0 {
			// An unsolicited push: the chain's event subscription, not a
			// response to any pending call.
			c.dispatchEvent(resp.Result)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- rpcResponse{ID: id, Error: &rpcError{Message: err.Error()}}
		delete(c.pending, id)
	}
}

// call sends method(params) and blocks for the matching response or ctx
// cancellation. Every typed read/write in this package funnels through
// here so error classification happens in exactly one place.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, gerrors.New("chainio.call", gerrors.CodeRpcUnavailable)
	}

	id := atomic.AddUint64(&c.nextID, 1)
	respCh := make(chan rpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = respCh
	err := c.conn.WriteJSON(rpcRequest{ID: id, Method: method, Params: params})
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, gerrors.Wrap("chainio.call", gerrors.CodeRpcUnavailable, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, classifyRPCError(method, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, gerrors.Wrap("chainio.call", gerrors.CodeRpcUnavailable, ctx.Err())
	case <-time.After(30 * time.Second):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, gerrors.New("chainio.call", gerrors.CodeRpcUnavailable)
	}
}

// classifyRPCError maps the chain's error string onto chain error codes.
// There's no fixed wire format for these messages, so classification goes
// by well-known substrings the same way most JSON-RPC chain clients in
// the wild surface revert reasons.
func classifyRPCError(op, msg string) error {
	switch {
	case contains(msg, "nonce too low", "nonce too high", "replacement transaction underpriced"):
		return gerrors.Wrap(op, gerrors.CodeNonceRace, fmt.Errorf("%s", msg))
	case contains(msg, "revert", "execution reverted"):
		return gerrors.Wrap(op, gerrors.CodeRevertedByContract, fmt.Errorf("%s", msg))
	default:
		return gerrors.Wrap(op, gerrors.CodeRpcUnavailable, fmt.Errorf("%s", msg))
	}
}

func contains(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// Close shuts down the connection and unblocks any in-flight call.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.quit)
	err := c.conn.Close()
	c.wg.Wait()

	c.mu.Lock()
	for _, sub := range c.subs {
		close(sub)
	}
	c.subs = nil
	c.mu.Unlock()

	return err
}

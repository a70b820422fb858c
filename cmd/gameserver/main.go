// Command gameserver is the game server's process entry point: load
// configuration, wire the store, chain client, operator queue, and game
// manager together, run startup recovery, and block until an interrupt
// signal asks for a graceful shutdown. Its shape mirrors lnd.go's nested
// "real main" pattern — a gameserverMain() error the top-level main()
// wraps for a clean os.Exit(1) on failure, since top-level defers never
// run across os.Exit.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/kalinbas/chain-assassin/internal/chainio"
	"github.com/kalinbas/chain-assassin/internal/config"
	"github.com/kalinbas/chain-assassin/internal/gamemanager"
	"github.com/kalinbas/chain-assassin/internal/listener"
	"github.com/kalinbas/chain-assassin/internal/logging"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/operator"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

func main() {
	if err := gameserverMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// gameserverMain is the true entry point; see the package doc for why it
// is nested under main.
func gameserverMain() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(cfg.LogLevel, false); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	log := logging.Named("MAIN")
	log.Infow("starting game server", "dbPath", cfg.DBPath, "rebuildDb", cfg.RebuildDB)

	db, err := sqlstore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	operatorKey, err := parseOperatorKey(cfg.OperatorPrivateKey)
	if err != nil {
		return fmt.Errorf("parse operator key: %w", err)
	}

	chain, err := chainio.Dial(chainio.Config{
		RPCUrl:          cfg.RPCUrl,
		RPCWsUrl:        cfg.RPCWsUrl,
		ContractAddress: cfg.ContractAddress,
		ChainID:         cfg.ChainID,
		OperatorKey:     operatorKey,
	})
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	defer chain.Close()

	clk := clock.NewDefaultClock()

	startNonce, err := chain.GetOperatorNonce(context.Background())
	if err != nil {
		return fmt.Errorf("read operator nonce: %w", err)
	}
	queue := operator.New(chain, db, clk, startNonce)
	if err := queue.Start(context.Background()); err != nil {
		return fmt.Errorf("start operator queue: %w", err)
	}
	defer queue.Stop()

	manager := gamemanager.New(
		db, chain, queue, chain, clk, broadcastLogger{log: logging.Named("BCST")}, cfg,
		listener.Config{
			StaleAfter:      cfg.WsHeartbeatStale(),
			RestartCooldown: cfg.WsRestartCooldown(),
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx, cfg.RebuildDB); err != nil {
		return fmt.Errorf("start game manager: %w", err)
	}
	defer manager.Shutdown()

	log.Info("game server ready")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")

	return nil
}

// broadcastLogger satisfies gamemanager.Broadcaster for a standalone
// process with no attached transport: it only logs what would have gone
// out, since the WebSocket fanout itself is an external collaborator.
type broadcastLogger struct {
	log interface {
		Infow(msg string, kv ...interface{})
	}
}

func (b broadcastLogger) Send(msg message.Egress) {
	b.log.Infow("egress", "kind", msg.Kind, "game", msg.GameID, "target", msg.Target)
}

// parseOperatorKey decodes a hex-encoded secp256k1 private key, accepting
// an optional "0x" prefix the way config values are usually pasted in.
func parseOperatorKey(hexKey string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return btcec.PrivKeyFromBytes(raw), nil
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/havona/darkbook/params"
	"github.com/havona/darkbook/pkg/api"
	"github.com/havona/darkbook/pkg/book"
	"github.com/havona/darkbook/pkg/crypto"
	"github.com/havona/darkbook/pkg/host"
	"github.com/havona/darkbook/pkg/oracle"
	"github.com/havona/darkbook/pkg/storage"
	"github.com/havona/darkbook/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("node_starting",
		"data_dir", cfg.Node.DataDir,
		"api_addr", cfg.Node.APIAddr,
		"max_book_depth", cfg.Engine.MaxBookDepth,
		"cost_envelope", cfg.Engine.CostEnvelope,
	)

	// ---- Confidential store ----
	kv, err := storage.OpenPebble(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer kv.Close()

	// ---- Host capabilities ----
	resolver := host.SigResolver{}
	randSource := host.EntropySource{}
	clock := util.RealClock{}

	// ---- Engine ----
	engine := book.NewEngine(cfg.Engine, resolver, randSource, kv, clock, sugar)

	// ---- Price attestation ----
	var submitter common.Address
	var feedSigner *crypto.Signer
	if cfg.Oracle.Submitter != "" {
		feedSigner, err = crypto.FromPrivateKeyHex(cfg.Oracle.Submitter)
		if err != nil {
			sugar.Fatalw("oracle_key_invalid", "err", err)
		}
		submitter = feedSigner.Address()
		sugar.Infow("oracle_submitter_registered", "address", submitter.Hex())
	}
	att := oracle.NewAttestation(submitter, cfg.Oracle.Staleness, resolver, kv, clock, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Node.EnableFeed && feedSigner != nil {
		feed := oracle.NewFeed(cfg.Oracle, att, feedSigner, clock, sugar)
		go feed.Run(ctx)
	}

	// ---- API ----
	server := api.NewServer(engine, att, crypto.NewEnvelopeSigner(crypto.DefaultDomain()), sugar)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("node_stopping")
	_ = os.Stdout.Sync()
}

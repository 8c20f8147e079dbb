package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Engine struct {
	// MaxBookDepth caps resting orders per commodity side. The cost envelope
	// is sized to a full scan at this depth; placements beyond it are refused
	// rather than silently degrading the constant-cost guarantee.
	MaxBookDepth int

	// CostEnvelope is the fixed work-unit ceiling every placeOrder is padded
	// up to, matched or not.
	CostEnvelope uint64
}

type Oracle struct {
	Submitter    string // hex private key of the registered price submitter
	PollInterval time.Duration
	Staleness    time.Duration // getPrice fails Stale beyond this age
	Commodities  []string
	FeedURL      string // chart endpoint base; empty disables the feed daemon
}

type Node struct {
	DataDir    string
	APIAddr    string
	LogFile    string
	EnableFeed bool
}

type Config struct {
	Engine Engine
	Oracle Oracle
	Node   Node
}

func Default() Config {
	return Config{
		Engine: Engine{
			MaxBookDepth: 256,
			CostEnvelope: costEnvelopeFor(256),
		},
		Oracle: Oracle{
			PollInterval: 60 * time.Second,
			Staleness:    15 * time.Minute,
			Commodities:  []string{"CRUDE_OIL_WTI", "CRUDE_OIL_BRENT", "NATURAL_GAS", "XAU_USD", "WHEAT_USD"},
			FeedURL:      "https://query1.finance.yahoo.com/v8/finance/chart",
		},
		Node: Node{
			DataDir: "data",
			APIAddr: ":8080",
			LogFile: "data/node.log",
		},
	}
}

// costEnvelopeFor sizes the padding ceiling to a worst-case matching pass:
// every resting buy scanning every resting sell, plus the sealed-match commit.
func costEnvelopeFor(depth int) uint64 {
	return uint64(depth)*uint64(depth+8) + 4096
}

// LoadFromEnv loads configuration from a .env file (if present) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ENGINE_MAX_BOOK_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxBookDepth = n
			cfg.Engine.CostEnvelope = costEnvelopeFor(n)
		}
	}
	if v := os.Getenv("ENGINE_COST_ENVELOPE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.Engine.CostEnvelope = n
		}
	}

	if v := os.Getenv("ORACLE_SUBMITTER_KEY"); v != "" {
		cfg.Oracle.Submitter = v
	}
	if v := os.Getenv("ORACLE_POLL_INTERVAL_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			cfg.Oracle.PollInterval = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("ORACLE_STALENESS_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			cfg.Oracle.Staleness = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("ORACLE_FEED_URL"); v != "" {
		cfg.Oracle.FeedURL = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("ENABLE_FEED"); v != "" {
		cfg.Node.EnableFeed = v == "true"
	}

	return cfg
}

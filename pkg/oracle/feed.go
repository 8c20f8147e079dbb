package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/havona/darkbook/params"
	"github.com/havona/darkbook/pkg/book"
	"github.com/havona/darkbook/pkg/crypto"
	"github.com/havona/darkbook/pkg/host"
	"github.com/havona/darkbook/pkg/util"
)

// tickers maps commodity names to the chart symbols of the spot source. In
// production this would be a paid data provider; the shape below matches the
// free Yahoo chart endpoint.
var tickers = map[string]string{
	"CRUDE_OIL_WTI":   "CL=F",
	"CRUDE_OIL_BRENT": "BZ=F",
	"NATURAL_GAS":     "NG=F",
	"XAU_USD":         "GC=F",
	"WHEAT_USD":       "ZW=F",
}

// Feed polls commodity spot prices and submits signed attestation batches.
// It holds the registered submitter's key; the attestation registry accepts
// batches from that identity only.
type Feed struct {
	log    *zap.SugaredLogger
	att    *Attestation
	signer *crypto.Signer
	client *http.Client
	clock  util.Clock
	cfg    params.Oracle
}

func NewFeed(cfg params.Oracle, att *Attestation, signer *crypto.Signer, clock util.Clock, log *zap.SugaredLogger) *Feed {
	return &Feed{
		log:    log,
		att:    att,
		signer: signer,
		client: &http.Client{Timeout: 10 * time.Second},
		clock:  clock,
		cfg:    cfg,
	}
}

// Run polls until the context is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.log.Infow("feed_started",
		"submitter", f.signer.Address().Hex(),
		"interval", f.cfg.PollInterval.String(),
		"commodities", len(f.cfg.Commodities),
	)
	for {
		f.pollOnce(ctx)
		select {
		case <-ctx.Done():
			f.log.Infow("feed_stopped")
			return
		case <-f.clock.After(f.cfg.PollInterval):
		}
	}
}

func (f *Feed) pollOnce(ctx context.Context) {
	var (
		commodities []common.Hash
		prices      []int64
	)
	for _, name := range f.cfg.Commodities {
		symbol, ok := tickers[name]
		if !ok {
			f.log.Warnw("feed_unknown_commodity", "name", name)
			continue
		}
		price, err := f.fetch(ctx, symbol)
		if err != nil {
			f.log.Warnw("feed_fetch_failed", "name", name, "err", err)
			continue
		}
		commodities = append(commodities, book.CommodityTag(name))
		prices = append(prices, price)
	}

	if len(commodities) == 0 {
		f.log.Warnw("feed_all_fetches_failed")
		return
	}

	call, err := f.signedBatchCall(commodities, prices)
	if err != nil {
		f.log.Errorw("feed_sign_failed", "err", err)
		return
	}
	if err := f.att.SubmitBatch(call, commodities, prices); err != nil {
		f.log.Errorw("feed_submit_failed", "err", err)
		return
	}
	f.log.Infow("feed_batch_submitted", "count", len(commodities))
}

// signedBatchCall signs the batch digest so the attestation registry can
// attribute the submission to the registered identity.
func (f *Feed) signedBatchCall(commodities []common.Hash, prices []int64) (host.Call, error) {
	payload := make([]byte, 0, len(commodities)*40)
	for i, c := range commodities {
		payload = append(payload, c.Bytes()...)
		var p [8]byte
		for j := 0; j < 8; j++ {
			p[j] = byte(uint64(prices[i]) >> (56 - 8*j))
		}
		payload = append(payload, p[:]...)
	}
	digest := ethcrypto.Keccak256Hash([]byte("darkbook/attest-batch/v1"), payload)

	sig, err := f.signer.Sign(digest.Bytes())
	if err != nil {
		return nil, err
	}
	return host.SignedCall{Digest: digest, Signature: sig}, nil
}

// chartResponse is the subset of the chart JSON the feed reads.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

// fetch returns the spot price for a chart symbol, USD x 1e6.
func (f *Feed) fetch(ctx context.Context, symbol string) (int64, error) {
	url := fmt.Sprintf("%s/%s", f.cfg.FeedURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "HavonaFeed/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode chart: %w", err)
	}
	if len(body.Chart.Result) == 0 {
		return 0, fmt.Errorf("empty chart result")
	}

	quote, err := decimal.NewFromString(body.Chart.Result[0].Meta.RegularMarketPrice.String())
	if err != nil {
		return 0, fmt.Errorf("parse price: %w", err)
	}
	if !quote.IsPositive() {
		return 0, fmt.Errorf("non-positive price %s", quote)
	}
	return quote.Shift(6).IntPart(), nil
}

package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/havona/darkbook/pkg/host"
	"github.com/havona/darkbook/pkg/util"
)

var (
	// ErrNoData means no attestation has ever been submitted for the tag.
	ErrNoData = errors.New("oracle: no price data")

	// ErrStalePrice means the latest attestation is older than the window.
	ErrStalePrice = errors.New("oracle: price is stale")

	// ErrNotSubmitter rejects a submission from anyone but the registered
	// submitter identity.
	ErrNotSubmitter = errors.New("oracle: not the registered submitter")

	// ErrInvalidPrice rejects non-positive prices.
	ErrInvalidPrice = errors.New("oracle: invalid price")
)

const prefixPrice = "px:"

// PricePoint is one attested reference price, USD x 1e6.
type PricePoint struct {
	Price     int64 `json:"price"`
	UpdatedAt int64 `json:"updatedAt"` // unix seconds
}

// Attestation is the price-attestation registry. Writes are restricted to
// the single registered submitter (the TEE oracle's identity); reads are
// open to all but fail NoData/Stale rather than returning unusable prices.
//
// The order book does not depend on this component; both sides only have to
// agree on the keccak commodity-tag scheme, which book.CommodityTag fixes.
type Attestation struct {
	mu        sync.Mutex
	log       *zap.SugaredLogger
	kv        host.KV
	ids       host.IdentityResolver
	clock     util.Clock
	submitter common.Address
	staleness time.Duration
}

func NewAttestation(submitter common.Address, staleness time.Duration, ids host.IdentityResolver, kv host.KV, clock util.Clock, log *zap.SugaredLogger) *Attestation {
	return &Attestation{
		log:       log,
		kv:        kv,
		ids:       ids,
		clock:     clock,
		submitter: submitter,
		staleness: staleness,
	}
}

func priceKey(commodity common.Hash) []byte {
	return append([]byte(prefixPrice), commodity.Bytes()...)
}

// SubmitPrice records one attested price.
func (a *Attestation) SubmitPrice(call host.Call, commodity common.Hash, price int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submit(call, commodity, price)
}

// SubmitBatch records several attestations in one authenticated call.
func (a *Attestation) SubmitBatch(call host.Call, commodities []common.Hash, prices []int64) error {
	if len(commodities) != len(prices) {
		return fmt.Errorf("oracle: batch length mismatch: %d commodities, %d prices", len(commodities), len(prices))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range commodities {
		if err := a.submit(call, c, prices[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Attestation) submit(call host.Call, commodity common.Hash, price int64) error {
	sender, err := a.ids.TrueSubmitter(call)
	if err != nil {
		return fmt.Errorf("resolve submitter: %w", err)
	}
	if sender != a.submitter {
		return ErrNotSubmitter
	}
	if price <= 0 {
		return ErrInvalidPrice
	}

	pt := PricePoint{Price: price, UpdatedAt: a.clock.Now().Unix()}
	data, err := json.Marshal(pt)
	if err != nil {
		panic(err)
	}
	a.kv.Set(priceKey(commodity), data)
	a.log.Infow("price_attested", "commodity", commodity.Hex(), "price", price)
	return nil
}

// Price returns the latest attested price and its timestamp. Open to all
// callers; fails ErrNoData when never attested and ErrStalePrice past the
// staleness window.
func (a *Attestation) Price(commodity common.Hash) (int64, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, ok := a.kv.Get(priceKey(commodity))
	if !ok {
		return 0, 0, ErrNoData
	}
	var pt PricePoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		panic(fmt.Errorf("oracle: corrupt price point: %w", err))
	}
	if a.clock.Now().Unix()-pt.UpdatedAt > int64(a.staleness.Seconds()) {
		return 0, 0, ErrStalePrice
	}
	return pt.Price, pt.UpdatedAt, nil
}

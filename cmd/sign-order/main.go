// sign-order generates a keypair (or loads one from DARKBOOK_PRIVATE_KEY),
// signs a place-order envelope, and prints the JSON body ready to POST to
// /api/v1/orders — through any relayer, since attribution follows the
// signature.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/havona/darkbook/pkg/book"
	"github.com/havona/darkbook/pkg/crypto"
)

func main() {
	var (
		commodity = flag.String("commodity", "CRUDE_OIL_WTI", "commodity name")
		quantity  = flag.String("quantity", "50000", "quantity in base units (decimal)")
		price     = flag.String("price", "85.00", "price limit in USD (decimal)")
		side      = flag.String("side", "buy", "buy or sell")
		nonce     = flag.Uint64("nonce", 1, "envelope nonce")
	)
	flag.Parse()

	signer, err := loadSigner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "key: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "address: %s\n", signer.Address().Hex())

	qty, err := toFixed(*quantity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quantity: %v\n", err)
		os.Exit(1)
	}
	px, err := toFixed(*price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "price: %v\n", err)
		os.Exit(1)
	}
	var sideVal uint8
	if *side == "sell" {
		sideVal = uint8(book.SideSell)
	}

	env := crypto.NewEnvelopeSigner(crypto.DefaultDomain())
	_, sig, err := env.SignPlace(signer, &crypto.PlaceEnvelope{
		Commodity:  book.CommodityTag(*commodity),
		Quantity:   big.NewInt(qty),
		PriceLimit: big.NewInt(px),
		Side:       sideVal,
		Nonce:      new(big.Int).SetUint64(*nonce),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}

	body := map[string]interface{}{
		"commodity":  *commodity,
		"quantity":   *quantity,
		"priceLimit": *price,
		"side":       *side,
		"nonce":      *nonce,
		"signature":  hexutil.Encode(sig),
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	fmt.Println(string(out))
}

func loadSigner() (*crypto.Signer, error) {
	if hexKey := os.Getenv("DARKBOOK_PRIVATE_KEY"); hexKey != "" {
		return crypto.FromPrivateKeyHex(hexKey)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "generated key: %s (keep secret)\n", signer.PrivateKeyHex())
	return signer, nil
}

func toFixed(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Shift(6).IntPart(), nil
}

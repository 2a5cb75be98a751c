package provider

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-pay/gopay"
	"github.com/shopspring/decimal"
)

// parseNotifyForm converts an x-www-form-urlencoded callback body into a
// BodyMap. Literal "+" is restored to a space before percent-decoding:
// Alipay encodes the spaces inside timestamps like gmt_create as "+", while
// the "+" bytes inside the base64 sign arrive percent-encoded and must
// survive. Decoding in the other order would turn %2B into "+" first and
// then corrupt the signature. Pairs are split on the first "=".
func parseNotifyForm(body []byte) gopay.BodyMap {
	payload := strings.ReplaceAll(string(body), "+", " ")
	bm := make(gopay.BodyMap)
	for _, pair := range strings.Split(payload, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		val, err := url.PathUnescape(kv[1])
		if err != nil {
			// Keep malformed escapes as-is instead of dropping the pair.
			val = kv[1]
		}
		bm.Set(kv[0], val)
	}
	return bm
}

// yuanString renders integer fen as a yuan amount with two decimals, the
// unit Alipay uses on the wire.
func yuanString(fen int64) string {
	return decimal.NewFromInt(fen).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// yuanToFen parses a yuan decimal string into integer fen.
func yuanToFen(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrChannelAPI, s)
	}
	return d.Mul(decimal.NewFromInt(100)).IntPart(), nil
}

// parseFen parses a WeChat fen string. No unit conversion: V2 amounts are
// already integer fen.
func parseFen(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid fen amount %q", ErrChannelAPI, s)
	}
	return n, nil
}

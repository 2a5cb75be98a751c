package provider

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-pay/gopay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedOpenAPINotify(t *testing.T, privPEM string, fields map[string]string) []byte {
	t.Helper()
	bm := make(gopay.BodyMap)
	for k, v := range fields {
		bm.Set(k, v)
	}
	sig, err := signRSA(canonicalSigningString(bm, "sign", "sign_type"), privPEM, crypto.SHA256)
	require.NoError(t, err)
	bm.Set("sign", sig).Set("sign_type", "RSA2")
	return formEncode(bm)
}

func TestOpenAPIChargePayload(t *testing.T) {
	privPEM, pubPEM := testRSAKeys(t)
	cfg := &alipayConfig{
		pid:            "2088101000000000",
		appID:          "2016091800000000",
		version:        alipayVersionOpenAPI,
		privateKeyRSA2: privPEM,
		publicKeyRSA2:  pubPEM,
	}
	req := &ChargeRequest{
		ChargeID:        "ch_1",
		Amount:          10050,
		MerchantOrderNo: "ord_1",
		TimeExpire:      time.Now().Unix() + 90,
		Subject:         "测试订单",
		Body:            "two books",
		Extra:           ChargeExtra{SuccessURL: "https://m.example.com/done"},
	}

	bm, err := openAPIChargePayload(cfg, req, openAPIMethodPagePay, req.Extra.SuccessURL, "https://gw.example.com/notify/charges/ch_1")
	require.NoError(t, err)

	assert.Equal(t, "2016091800000000", bm.GetString("app_id"))
	assert.Equal(t, "alipay.trade.page.pay", bm.GetString("method"))
	assert.Equal(t, "JSON", bm.GetString("format"))
	assert.Equal(t, "utf-8", bm.GetString("charset"))
	assert.Equal(t, "RSA2", bm.GetString("sign_type"))
	assert.Equal(t, "1.0", bm.GetString("version"))
	assert.Equal(t, "https://gw.example.com/notify/charges/ch_1", bm.GetString("notify_url"))
	assert.Equal(t, "https://m.example.com/done", bm.GetString("return_url"))
	assert.Equal(t, openAPIGateway, bm.GetString("channel_url"))

	_, err = time.Parse(alipayTimeLayout, bm.GetString("timestamp"))
	assert.NoError(t, err)

	var biz map[string]any
	require.NoError(t, json.Unmarshal([]byte(bm.GetString("biz_content")), &biz))
	assert.Equal(t, "ord_1", biz["out_trade_no"])
	assert.Equal(t, "100.50", biz["total_amount"])
	assert.Equal(t, "FAST_INSTANT_TRADE_PAY", biz["product_code"])
	assert.Equal(t, "1m", biz["timeout_express"])
	assert.Equal(t, "ch_1", biz["passback_params"])
	extend, ok := biz["extend_params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, cfg.pid, extend["sys_service_provider_id"])

	// Unlike MAPI, sign_type stays inside the signed content.
	content := canonicalSigningString(bm, "sign", "channel_url")
	assert.NoError(t, verifyRSA(content, bm.GetString("sign"), pubPEM, crypto.SHA256))
}

func TestOpenAPICreateRefund(t *testing.T) {
	privPEM, pubPEM := testRSAKeys(t)
	cfg := &alipayConfig{
		pid:            "2088101000000000",
		appID:          "2016091800000000",
		version:        alipayVersionOpenAPI,
		privateKeyRSA2: privPEM,
		publicKeyRSA2:  pubPEM,
	}
	req := &RefundRequest{
		ChargeID:              "ch_1",
		ChargeAmount:          10050,
		ChargeMerchantOrderNo: "ord_1",
		RefundID:              "re_9",
		RefundAmount:          150,
		RefundMerchantOrderNo: "170000000000012345678901",
		Description:           "user request",
	}

	// response is swapped per subtest; the stub asserts the request once.
	var response string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "alipay.trade.refund", q.Get("method"))
		assert.Equal(t, "2016091800000000", q.Get("app_id"))
		assert.Equal(t, "RSA2", q.Get("sign_type"))

		var biz map[string]any
		assert.NoError(t, json.Unmarshal([]byte(q.Get("biz_content")), &biz))
		assert.Equal(t, "1.50", biz["refund_amount"])
		assert.Equal(t, "ord_1", biz["out_trade_no"])
		assert.Equal(t, "170000000000012345678901", biz["out_request_no"])
		assert.Equal(t, "user request", biz["refund_reason"])

		signed := make(gopay.BodyMap)
		for k := range q {
			signed.Set(k, q.Get(k))
		}
		assert.NoError(t, verifyRSA(canonicalSigningString(signed, "sign"), q.Get("sign"), pubPEM, crypto.SHA256))

		fmt.Fprint(w, response)
	}))
	defer srv.Close()

	orig := openAPIGateway
	openAPIGateway = srv.URL
	defer func() { openAPIGateway = orig }()

	env := testEnv()

	t.Run("fund_change Y succeeds", func(t *testing.T) {
		response = `{"alipay_trade_refund_response":{"code":"10000","msg":"Success","fund_change":"Y","refund_fee":"1.50"},"sign":"xx"}`
		res, err := openAPICreateRefund(context.Background(), cfg, env, req)
		require.NoError(t, err)
		assert.Equal(t, RefundStatusSucceeded, res.Status)
		assert.Equal(t, int64(150), res.Amount)
		assert.Equal(t, "10000", res.Extra["code"])
	})

	t.Run("fund_change N fails", func(t *testing.T) {
		response = `{"alipay_trade_refund_response":{"code":"10000","msg":"Success","fund_change":"N"},"sign":"xx"}`
		res, err := openAPICreateRefund(context.Background(), cfg, env, req)
		require.NoError(t, err)
		assert.Equal(t, RefundStatusFailed, res.Status)
		assert.Equal(t, "fund_change != Y", res.FailureMsg)
	})

	t.Run("business error fails with msg", func(t *testing.T) {
		response = `{"alipay_trade_refund_response":{"code":"40004","msg":"Business Failed","sub_code":"ACQ.TRADE_NOT_EXIST"},"sign":"xx"}`
		res, err := openAPICreateRefund(context.Background(), cfg, env, req)
		require.NoError(t, err)
		assert.Equal(t, RefundStatusFailed, res.Status)
		assert.Equal(t, "Business Failed", res.FailureMsg)
	})

	t.Run("missing envelope is a channel error", func(t *testing.T) {
		response = `{"error_response":{"code":"20000"}}`
		_, err := openAPICreateRefund(context.Background(), cfg, env, req)
		assert.ErrorIs(t, err, ErrChannelAPI)
	})
}

func TestParseOpenAPINotify(t *testing.T) {
	privPEM, pubPEM := testRSAKeys(t)

	fields := func() map[string]string {
		return map[string]string{
			"notify_id":    "7060",
			"trade_status": "TRADE_SUCCESS",
			"out_trade_no": "ord_1",
			"total_amount": "1.50",
			"app_id":       "2016091800000000",
		}
	}

	t.Run("accepts a signed success notify", func(t *testing.T) {
		n, err := parseOpenAPINotify(signedOpenAPINotify(t, privPEM, fields()))
		require.NoError(t, err)
		require.NoError(t, n.verify(pubPEM))

		got := n.result()
		assert.True(t, got.Succeeded)
		assert.Equal(t, "ord_1", got.MerchantOrderNo)
		assert.Equal(t, int64(150), got.Amount)
	})

	t.Run("rejects RSA sign_type", func(t *testing.T) {
		bm := make(gopay.BodyMap)
		for k, v := range fields() {
			bm.Set(k, v)
		}
		bm.Set("sign", "x").Set("sign_type", "RSA")
		_, err := parseOpenAPINotify(formEncode(bm))
		assert.ErrorIs(t, err, ErrChannelAPI)
	})

	t.Run("rejects missing total_amount", func(t *testing.T) {
		f := fields()
		delete(f, "total_amount")
		_, err := parseOpenAPINotify(signedOpenAPINotify(t, privPEM, f))
		assert.ErrorIs(t, err, ErrChannelAPI)
	})

	t.Run("wrong key fails verification", func(t *testing.T) {
		_, otherPub := testRSAKeys(t)
		n, err := parseOpenAPINotify(signedOpenAPINotify(t, privPEM, fields()))
		require.NoError(t, err)
		assert.ErrorIs(t, n.verify(otherPub), ErrChannelAPI)
	})
}

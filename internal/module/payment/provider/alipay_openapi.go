package provider

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-pay/gopay"
)

// OpenAPI method names.
const (
	openAPIMethodPagePay = "alipay.trade.page.pay"
	openAPIMethodWapPay  = "alipay.trade.wap.pay"
	openAPIMethodRefund  = "alipay.trade.refund"
)

// openAPIChargePayload builds the signed OpenAPI payment form. Unlike MAPI,
// the signature covers sign_type; channel_url stays transport-only.
func openAPIChargePayload(cfg *alipayConfig, req *ChargeRequest, method, returnURL, notifyURL string) (gopay.BodyMap, error) {
	minutes, err := expireMinutes(req.TimeExpire)
	if err != nil {
		return nil, err
	}

	bizContent := make(gopay.BodyMap)
	bizContent.Set("body", req.Body).
		Set("subject", req.Subject).
		Set("out_trade_no", req.MerchantOrderNo).
		Set("total_amount", yuanString(req.Amount)).
		Set("product_code", "FAST_INSTANT_TRADE_PAY").
		SetBodyMap("extend_params", func(b gopay.BodyMap) {
			b.Set("sys_service_provider_id", cfg.pid)
		}).
		Set("timeout_express", fmt.Sprintf("%dm", minutes)).
		Set("passback_params", req.ChargeID)

	bm := make(gopay.BodyMap)
	bm.Set("app_id", cfg.appID).
		Set("method", method).
		Set("format", "JSON").
		Set("charset", "utf-8").
		Set("sign_type", "RSA2").
		Set("timestamp", time.Now().UTC().Format(alipayTimeLayout)).
		Set("version", "1.0").
		Set("biz_content", bizContent.JsonBody()).
		Set("notify_url", notifyURL).
		Set("return_url", returnURL)

	sign, err := signRSA(canonicalSigningString(bm, "sign", "channel_url"), cfg.privateKeyRSA2, crypto.SHA256)
	if err != nil {
		return nil, err
	}
	bm.Set("sign", sign).Set("channel_url", openAPIGateway)
	return bm, nil
}

// openAPICreateRefund calls alipay.trade.refund, which settles synchronously.
func openAPICreateRefund(ctx context.Context, cfg *alipayConfig, env Env, req *RefundRequest) (*RefundResult, error) {
	bizContent := make(gopay.BodyMap)
	bizContent.Set("refund_amount", yuanString(req.RefundAmount)).
		Set("out_trade_no", req.ChargeMerchantOrderNo).
		Set("out_request_no", req.RefundMerchantOrderNo).
		Set("refund_reason", req.Description)

	bm := make(gopay.BodyMap)
	bm.Set("app_id", cfg.appID).
		Set("method", openAPIMethodRefund).
		Set("format", "JSON").
		Set("charset", "utf-8").
		Set("sign_type", "RSA2").
		Set("timestamp", time.Now().UTC().Format(alipayTimeLayout)).
		Set("version", "1.0").
		Set("biz_content", bizContent.JsonBody())

	sign, err := signRSA(canonicalSigningString(bm, "sign"), cfg.privateKeyRSA2, crypto.SHA256)
	if err != nil {
		return nil, err
	}
	bm.Set("sign", sign)

	respBody, err := env.Client.PostForm(ctx, openAPIGateway, bm)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Response map[string]any `json:"alipay_trade_refund_response"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode alipay refund response: %v", ErrChannelAPI, err)
	}
	if envelope.Response == nil {
		return nil, fmt.Errorf("%w: missing alipay_trade_refund_response", ErrChannelAPI)
	}

	result := &RefundResult{
		Amount:      req.RefundAmount,
		Description: req.Description,
		Extra:       envelope.Response,
	}
	code, _ := envelope.Response["code"].(string)
	fundChange, _ := envelope.Response["fund_change"].(string)
	switch {
	case code == "10000" && fundChange == "Y":
		result.Status = RefundStatusSucceeded
	case code == "10000":
		result.Status = RefundStatusFailed
		result.FailureMsg = "fund_change != Y"
	default:
		result.Status = RefundStatusFailed
		msg, _ := envelope.Response["msg"].(string)
		result.FailureMsg = msg
	}
	return result, nil
}

// openAPINotify is a parsed OpenAPI asynchronous payment notification.
type openAPINotify struct {
	bm              gopay.BodyMap
	sign            string
	tradeStatus     string
	merchantOrderNo string
	amount          int64
}

func parseOpenAPINotify(body []byte) (*openAPINotify, error) {
	bm := parseNotifyForm(body)
	if bm.GetString("sign_type") != "RSA2" {
		return nil, fmt.Errorf("%w: sign_type not RSA2", ErrChannelAPI)
	}
	n := &openAPINotify{
		bm:              bm,
		sign:            bm.GetString("sign"),
		tradeStatus:     bm.GetString("trade_status"),
		merchantOrderNo: bm.GetString("out_trade_no"),
	}
	if n.sign == "" || n.tradeStatus == "" || n.merchantOrderNo == "" || bm.GetString("total_amount") == "" {
		return nil, fmt.Errorf("%w: missing required params", ErrChannelAPI)
	}
	amount, err := yuanToFen(bm.GetString("total_amount"))
	if err != nil {
		return nil, err
	}
	n.amount = amount
	return n, nil
}

func (n *openAPINotify) verify(publicKey string) error {
	return verifyRSA(canonicalSigningString(n.bm, "sign", "sign_type"), n.sign, publicKey, crypto.SHA256)
}

func (n *openAPINotify) result() *NotifyResult {
	return &NotifyResult{
		Succeeded:       n.tradeStatus == "TRADE_SUCCESS" || n.tradeStatus == "TRADE_FINISHED",
		MerchantOrderNo: n.merchantOrderNo,
		Amount:          n.amount,
	}
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-pay/gopay"
)

// WeChat Pay V2 endpoints, vars so tests can point calls at a stub.
var (
	wechatUnifiedOrderURL = "https://api.mch.weixin.qq.com/pay/unifiedorder"
	wechatRefundURL       = "https://api.mch.weixin.qq.com/secapi/pay/refund"
)

// WeChatNotifyAck is the body WeChat expects once a notification has been
// accepted. Anything else makes the gateway redeliver.
const WeChatNotifyAck = `<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>`

// NotifyAck returns the acknowledgment body the given channel expects for an
// accepted notification.
func NotifyAck(channel string) string {
	switch channel {
	case ChannelWxPub, ChannelWxLite:
		return WeChatNotifyAck
	default:
		return AlipayNotifyAck
	}
}

// wechatTimeExpire renders a unix timestamp in the Beijing-time layout the
// V2 API requires.
func wechatTimeExpire(ts int64) string {
	return time.Unix(ts, 0).In(time.FixedZone("CST", 8*3600)).Format("20060102150405")
}

// truncateUTF8 trims s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// wechatCreateCredential calls unifiedorder and assembles the JSAPI pay
// credential from the returned prepay_id. The request nonce is reused as the
// credential nonce so the client-side sign covers the same value.
func wechatCreateCredential(ctx context.Context, cfg *wechatConfig, env Env, req *ChargeRequest) (json.RawMessage, error) {
	if req.Extra.OpenID == "" {
		return nil, fmt.Errorf("%w: missing open_id in charge extra", ErrMalformedRequest)
	}
	nonce := nonceStr()

	bm := make(gopay.BodyMap)
	bm.Set("appid", cfg.appID).
		Set("mch_id", cfg.mchID).
		Set("nonce_str", nonce).
		Set("body", truncateUTF8(req.Body, 127)).
		Set("out_trade_no", req.MerchantOrderNo).
		Set("total_fee", strconv.FormatInt(req.Amount, 10)).
		Set("spbill_create_ip", req.ClientIP).
		Set("time_expire", wechatTimeExpire(req.TimeExpire)).
		Set("notify_url", env.ChargeNotifyURL(req.ChargeID)).
		Set("trade_type", "JSAPI").
		Set("openid", req.Extra.OpenID)
	bm.Set("sign", signWeChatMD5(bm, cfg.key))

	respBody, err := env.Client.PostXML(ctx, wechatUnifiedOrderURL, bm)
	if err != nil {
		return nil, err
	}
	resp, err := decodeXML(respBody)
	if err != nil {
		return nil, err
	}
	if resp.GetString("return_code") != "SUCCESS" {
		return nil, fmt.Errorf("%w: unifiedorder rejected: %s", ErrChannelAPI, resp.GetString("return_msg"))
	}
	if resp.GetString("result_code") != "SUCCESS" {
		return nil, fmt.Errorf("%w: unifiedorder failed: %s", ErrChannelAPI, resp.GetString("err_code_des"))
	}
	prepayID := resp.GetString("prepay_id")
	if prepayID == "" {
		return nil, fmt.Errorf("%w: missing prepay_id", ErrChannelAPI)
	}

	cred := make(gopay.BodyMap)
	cred.Set("appId", cfg.appID).
		Set("timeStamp", strconv.FormatInt(time.Now().Unix(), 10)).
		Set("nonceStr", nonce).
		Set("package", "prepay_id="+prepayID).
		Set("signType", "MD5")
	cred.Set("paySign", signWeChatMD5(cred, cfg.key))
	return marshalCredential(cred)
}

// wechatCreateRefund calls the secapi refund endpoint over mutual TLS. A
// SUCCESS result only means the refund was accepted; completion arrives on
// the refund notify endpoint.
func wechatCreateRefund(ctx context.Context, cfg *wechatConfig, env Env, req *RefundRequest) (*RefundResult, error) {
	if len(cfg.clientCert) == 0 || len(cfg.clientKey) == 0 {
		return nil, fmt.Errorf("%w: missing client certificate", ErrInvalidConfig)
	}

	bm := make(gopay.BodyMap)
	bm.Set("appid", cfg.appID).
		Set("mch_id", cfg.mchID).
		Set("nonce_str", nonceStr()).
		Set("out_trade_no", req.ChargeMerchantOrderNo).
		Set("out_refund_no", req.RefundMerchantOrderNo).
		Set("total_fee", strconv.FormatInt(req.ChargeAmount, 10)).
		Set("refund_fee", strconv.FormatInt(req.RefundAmount, 10)).
		Set("notify_url", env.RefundNotifyURL(req.ChargeID, req.RefundID))
	bm.Set("sign", signWeChatMD5(bm, cfg.key))

	respBody, err := env.Client.PostXMLWithTLS(ctx, wechatRefundURL, bm, cfg.mchID, cfg.clientCert, cfg.clientKey)
	if err != nil {
		return nil, err
	}
	resp, err := decodeXML(respBody)
	if err != nil {
		return nil, err
	}
	if resp.GetString("return_code") != "SUCCESS" {
		return nil, fmt.Errorf("%w: refund rejected: %s", ErrChannelAPI, resp.GetString("return_msg"))
	}

	result := &RefundResult{
		Amount:      req.RefundAmount,
		Description: req.Description,
		Extra:       map[string]any(resp),
	}
	if resp.GetString("result_code") == "SUCCESS" {
		result.Status = RefundStatusPending
	} else {
		result.Status = RefundStatusFailed
		result.FailureMsg = resp.GetString("err_code_des")
	}
	return result, nil
}

func wechatProcessChargeNotify(cfg *wechatConfig, body []byte) (*NotifyResult, error) {
	bm, err := decodeXML(body)
	if err != nil {
		return nil, err
	}
	if bm.GetString("return_code") != "SUCCESS" {
		return nil, fmt.Errorf("%w: return_code not SUCCESS: %s", ErrChannelAPI, bm.GetString("return_msg"))
	}
	if !verifyWeChatMD5(bm, cfg.key) {
		return nil, fmt.Errorf("%w: wrong md5 signature", ErrChannelAPI)
	}
	merchantOrderNo := bm.GetString("out_trade_no")
	totalFee := bm.GetString("total_fee")
	if merchantOrderNo == "" || totalFee == "" {
		return nil, fmt.Errorf("%w: missing required params", ErrChannelAPI)
	}
	amount, err := parseFen(totalFee)
	if err != nil {
		return nil, err
	}
	return &NotifyResult{
		Succeeded:       bm.GetString("result_code") == "SUCCESS",
		MerchantOrderNo: merchantOrderNo,
		Amount:          amount,
	}, nil
}

// wechatProcessRefundNotify decrypts the req_info envelope and reads the
// refund outcome from the inner document. Refund notifications carry no MD5
// signature; the AES key is the authenticator.
func wechatProcessRefundNotify(cfg *wechatConfig, body []byte) (*RefundNotifyResult, error) {
	outer, err := decodeXML(body)
	if err != nil {
		return nil, err
	}
	if outer.GetString("return_code") != "SUCCESS" {
		return nil, fmt.Errorf("%w: return_code not SUCCESS: %s", ErrChannelAPI, outer.GetString("return_msg"))
	}
	reqInfo := outer.GetString("req_info")
	if reqInfo == "" {
		return nil, fmt.Errorf("%w: missing req_info", ErrChannelAPI)
	}
	plain, err := decryptAES256ECB(reqInfo, cfg.key)
	if err != nil {
		return nil, err
	}
	inner, err := decodeXML(plain)
	if err != nil {
		return nil, err
	}

	refundStatus := inner.GetString("refund_status")
	merchantOrderNo := inner.GetString("out_trade_no")
	refundNo := inner.GetString("out_refund_no")
	refundFee := inner.GetString("refund_fee")
	if refundStatus == "" || merchantOrderNo == "" || refundNo == "" || refundFee == "" {
		return nil, fmt.Errorf("%w: missing required params", ErrChannelAPI)
	}
	amount, err := parseFen(refundFee)
	if err != nil {
		return nil, err
	}

	result := &RefundNotifyResult{
		MerchantOrderNo: merchantOrderNo,
		RefundNo:        refundNo,
		Amount:          amount,
	}
	if refundStatus == "SUCCESS" {
		result.Status = RefundStatusSucceeded
	} else {
		result.Status = RefundStatusFailed
		result.FailureMsg = refundStatus
	}
	return result, nil
}

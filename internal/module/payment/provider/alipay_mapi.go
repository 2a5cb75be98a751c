package provider

import (
	"crypto"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pay/gopay"
)

// MAPI service names.
const (
	mapiServicePcPay  = "create_direct_pay_by_user"
	mapiServiceWapPay = "alipay.wap.create.direct.pay.by.user"
	mapiServiceRefund = "refund_fastpay_by_platform_pwd"
)

// mapiChargePayload builds the signed MAPI payment form. channel_url rides
// in the credential for the client SDK but never enters the signature.
func mapiChargePayload(cfg *alipayConfig, req *ChargeRequest, service, returnURL, notifyURL string) (gopay.BodyMap, error) {
	minutes, err := expireMinutes(req.TimeExpire)
	if err != nil {
		return nil, err
	}

	bm := make(gopay.BodyMap)
	bm.Set("service", service).
		Set("_input_charset", "utf-8").
		Set("return_url", returnURL).
		Set("notify_url", notifyURL).
		Set("partner", cfg.pid).
		Set("seller_id", cfg.pid).
		Set("out_trade_no", req.MerchantOrderNo).
		Set("subject", req.Subject).
		Set("body", req.Body).
		Set("total_fee", yuanString(req.Amount)).
		Set("payment_type", "1").
		Set("it_b_pay", fmt.Sprintf("%dm", minutes))

	sign, err := signRSA(canonicalSigningString(bm, "sign", "sign_type", "channel_url"), cfg.privateKey, crypto.SHA1)
	if err != nil {
		return nil, err
	}
	bm.Set("sign", sign).
		Set("sign_type", "RSA").
		Set("channel_url", mapiGateway)
	return bm, nil
}

// mapiCreateRefund signs a refund_fastpay_by_platform_pwd form and hands the
// resulting gateway URL back to the merchant. The refund stays pending until
// an operator completes it in the Alipay console behind that URL.
func mapiCreateRefund(cfg *alipayConfig, env Env, req *RefundRequest) (*RefundResult, error) {
	now := time.Now()
	bm := make(gopay.BodyMap)
	bm.Set("service", mapiServiceRefund).
		Set("partner", cfg.pid).
		Set("_input_charset", "utf-8").
		Set("notify_url", env.RefundNotifyURL(req.ChargeID, req.RefundID)).
		Set("seller_user_id", cfg.pid).
		Set("refund_date", now.UTC().Format(alipayTimeLayout)).
		Set("batch_no", now.UTC().Format("20060102")+strconv.FormatInt(now.UnixMilli(), 10)).
		Set("batch_num", "1").
		Set("detail_data", fmt.Sprintf("%s^%s^%s", req.ChargeMerchantOrderNo, yuanString(req.RefundAmount), req.Description))

	sign, err := signRSA(canonicalSigningString(bm, "sign", "sign_type"), cfg.privateKey, crypto.SHA1)
	if err != nil {
		return nil, err
	}
	bm.Set("sign", sign).Set("sign_type", "RSA")

	return &RefundResult{
		Status:      RefundStatusPending,
		Amount:      req.RefundAmount,
		Description: req.Description,
		Extra:       map[string]any{"refund_url": mapiGateway + "?" + bm.EncodeURLParams()},
	}, nil
}

// mapiNotify is a parsed MAPI asynchronous payment notification.
type mapiNotify struct {
	bm              gopay.BodyMap
	sign            string
	tradeStatus     string
	merchantOrderNo string
	amount          int64
}

func parseMapiNotify(body []byte) (*mapiNotify, error) {
	bm := parseNotifyForm(body)
	if bm.GetString("sign_type") != "RSA" {
		return nil, fmt.Errorf("%w: sign_type not RSA", ErrChannelAPI)
	}
	n := &mapiNotify{
		bm:              bm,
		sign:            bm.GetString("sign"),
		tradeStatus:     bm.GetString("trade_status"),
		merchantOrderNo: bm.GetString("out_trade_no"),
	}
	if n.sign == "" || n.tradeStatus == "" || n.merchantOrderNo == "" || bm.GetString("total_fee") == "" {
		return nil, fmt.Errorf("%w: missing required params", ErrChannelAPI)
	}
	amount, err := yuanToFen(bm.GetString("total_fee"))
	if err != nil {
		return nil, err
	}
	n.amount = amount
	return n, nil
}

func (n *mapiNotify) verify(publicKey string) error {
	return verifyRSA(canonicalSigningString(n.bm, "sign", "sign_type"), n.sign, publicKey, crypto.SHA1)
}

func (n *mapiNotify) result() *NotifyResult {
	return &NotifyResult{
		Succeeded:       n.tradeStatus == "TRADE_SUCCESS" || n.tradeStatus == "TRADE_FINISHED",
		MerchantOrderNo: n.merchantOrderNo,
		Amount:          n.amount,
	}
}

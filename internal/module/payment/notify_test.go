package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanpay/server/internal/module/payment/provider"
)

func TestService_HandleChargeNotify(t *testing.T) {
	success := &provider.NotifyResult{
		Succeeded:       true,
		MerchantOrderNo: "20260825001",
		Amount:          10000,
	}

	t.Run("marks the charge and order paid", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = success

		ack, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("<xml>raw</xml>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)

		assert.True(t, charge.Paid)
		require.NotNil(t, charge.TimePaid)

		assert.True(t, order.Paid)
		assert.Equal(t, OrderStatusPaid, order.Status)
		assert.Equal(t, int64(10000), order.AmountPaid)
		require.NotNil(t, order.TimePaid)

		require.Len(t, f.repo.histories, 1)
		assert.Equal(t, "ch_1", f.repo.histories[0].ChargeID)
		assert.Equal(t, "<xml>raw</xml>", f.repo.histories[0].Data)
		assert.Nil(t, f.repo.histories[0].RefundID)
	})

	t.Run("records history even when verification fails", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyErr = provider.ErrChannelAPI

		_, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("tampered"))
		assert.ErrorIs(t, err, provider.ErrChannelAPI)

		require.Len(t, f.repo.histories, 1)
		assert.Equal(t, "tampered", f.repo.histories[0].Data)
		assert.False(t, charge.Paid)
	})

	t.Run("acks a failed payment without transition", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = &provider.NotifyResult{Succeeded: false}

		ack, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("<xml/>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)
		assert.False(t, charge.Paid)
		assert.False(t, order.Paid)
		assert.Zero(t, f.repo.markChargePaidCalls)
	})

	t.Run("acks an already paid charge without re-marking", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		charge.Paid = true
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = success

		ack, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("<xml/>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)
		assert.Zero(t, f.repo.markChargePaidCalls)
	})

	t.Run("replay guard suppresses a racing duplicate", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = success
		f.guard.seen["notify:charge:ch_1"] = true

		ack, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("<xml/>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)
		assert.False(t, charge.Paid)
		assert.Zero(t, f.repo.markChargePaidCalls)
	})

	t.Run("rejects an amount mismatch", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = &provider.NotifyResult{
			Succeeded:       true,
			MerchantOrderNo: "20260825001",
			Amount:          1,
		}

		_, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("<xml/>"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadRequest)
		assert.False(t, charge.Paid)
	})

	t.Run("rejects an order number mismatch", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = &provider.NotifyResult{
			Succeeded:       true,
			MerchantOrderNo: "someone-else",
			Amount:          10000,
		}

		_, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("<xml/>"))
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("uses the alipay ack for alipay channels", func(t *testing.T) {
		f := newServiceFixture()
		charge := f.seedCharge("ch_1", nil)
		charge.Channel = provider.ChannelAlipayPcDirect
		f.seedChannel("app_1", "", provider.ChannelAlipayPcDirect)
		f.handler.notifyResult = success

		ack, err := f.service.HandleChargeNotify(context.Background(), "ch_1", []byte("form=data"))
		require.NoError(t, err)
		assert.Equal(t, provider.AlipayNotifyAck, ack)
		assert.True(t, charge.Paid)
	})

	t.Run("unknown charge is not found", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.HandleChargeNotify(context.Background(), "ch_ghost", []byte("<xml/>"))
		assert.ErrorIs(t, err, ErrChargeNotFound)
		// The raw body is still on record for the operator.
		assert.Len(t, f.repo.histories, 1)
	})
}

func TestService_HandleRefundNotify(t *testing.T) {
	success := &provider.RefundNotifyResult{
		Status:          provider.RefundStatusSucceeded,
		MerchantOrderNo: "20260825001",
		RefundNo:        "170000000001",
		Amount:          900,
	}

	t.Run("applies a successful refund to the order", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		refund := f.seedRefund("re_1", "ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.refundNotifyResult = success

		ack, err := f.service.HandleRefundNotify(context.Background(), "ch_1", "re_1", []byte("<xml>req_info</xml>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)

		assert.Equal(t, RefundStatusSucceeded, refund.Status)
		require.NotNil(t, refund.TimeSucceed)

		assert.True(t, order.Refunded)
		assert.Equal(t, int64(900), order.AmountRefunded)
		assert.Equal(t, OrderStatusRefunded, order.Status)

		require.Len(t, f.repo.histories, 1)
		require.NotNil(t, f.repo.histories[0].RefundID)
		assert.Equal(t, "re_1", *f.repo.histories[0].RefundID)
	})

	t.Run("keeps a second delivery idempotent", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		f.seedRefund("re_1", "ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.refundNotifyResult = success

		_, err := f.service.HandleRefundNotify(context.Background(), "ch_1", "re_1", []byte("<xml/>"))
		require.NoError(t, err)
		ack, err := f.service.HandleRefundNotify(context.Background(), "ch_1", "re_1", []byte("<xml/>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)

		assert.Equal(t, 1, f.repo.applyOrderRefundCalls)
		assert.Equal(t, int64(900), order.AmountRefunded)
	})

	t.Run("records the failure message", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		refund := f.seedRefund("re_1", "ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.refundNotifyResult = &provider.RefundNotifyResult{
			Status:          provider.RefundStatusFailed,
			MerchantOrderNo: "20260825001",
			RefundNo:        "170000000001",
			FailureMsg:      "NOTENOUGH",
		}

		ack, err := f.service.HandleRefundNotify(context.Background(), "ch_1", "re_1", []byte("<xml/>"))
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)

		assert.Equal(t, RefundStatusPending, refund.Status)
		require.NotNil(t, refund.FailureMsg)
		assert.Equal(t, "NOTENOUGH", *refund.FailureMsg)
		assert.False(t, order.Refunded)
	})

	t.Run("rejects a refund of another charge", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		f.seedCharge("ch_2", &order.ID)
		f.seedRefund("re_1", "ch_1", &order.ID)
		f.handler.refundNotifyResult = success

		_, err := f.service.HandleRefundNotify(context.Background(), "ch_2", "re_1", []byte("<xml/>"))
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("rejects a mismatched refund number", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		refund := f.seedRefund("re_1", "ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.refundNotifyResult = &provider.RefundNotifyResult{
			Status:          provider.RefundStatusSucceeded,
			MerchantOrderNo: "20260825001",
			RefundNo:        "999",
			Amount:          900,
		}

		_, err := f.service.HandleRefundNotify(context.Background(), "ch_1", "re_1", []byte("<xml/>"))
		assert.ErrorIs(t, err, ErrBadRequest)
		assert.Equal(t, RefundStatusPending, refund.Status)
	})
}

func TestService_RetryNotify(t *testing.T) {
	t.Run("replays a charge notification", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		charge := f.seedCharge("ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.notifyResult = &provider.NotifyResult{
			Succeeded:       true,
			MerchantOrderNo: "20260825001",
			Amount:          10000,
		}
		require.NoError(t, f.repo.CreateNotifyHistory(context.Background(), &ChargeNotifyHistory{
			ChargeID: "ch_1",
			Data:     "<xml>stored</xml>",
		}))

		ack, err := f.service.RetryNotify(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, provider.WeChatNotifyAck, ack)
		assert.True(t, charge.Paid)
		assert.True(t, order.Paid)
	})

	t.Run("replays a refund notification", func(t *testing.T) {
		f := newServiceFixture()
		order := f.seedOrder("o_1")
		f.seedCharge("ch_1", &order.ID)
		refund := f.seedRefund("re_1", "ch_1", &order.ID)
		f.seedChannel("app_1", "sub_1", provider.ChannelWxPub)
		f.handler.refundNotifyResult = &provider.RefundNotifyResult{
			Status:          provider.RefundStatusSucceeded,
			MerchantOrderNo: "20260825001",
			RefundNo:        "170000000001",
			Amount:          900,
		}
		refundID := "re_1"
		require.NoError(t, f.repo.CreateNotifyHistory(context.Background(), &ChargeNotifyHistory{
			ChargeID: "ch_1",
			RefundID: &refundID,
			Data:     "<xml>stored</xml>",
		}))

		_, err := f.service.RetryNotify(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, RefundStatusSucceeded, refund.Status)
		assert.True(t, order.Refunded)
	})

	t.Run("unknown history is not found", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.RetryNotify(context.Background(), 99)
		assert.ErrorIs(t, err, ErrHistoryNotFound)
	})
}

// Package main QuanPay Gateway API
//
//	@title						QuanPay Gateway API
//	@version					1.0
//	@description				统一支付网关 API，聚合支付宝与微信支付渠道
//
//	@contact.name				QuanPay Support
//	@contact.email				support@quanpay.dev
//
//	@license.name				Proprietary
//
//	@host						localhost:8002
//	@BasePath					/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {live_key}"
//
//	@tag.name					Order
//	@tag.description			订单与支付接口
//
//	@tag.name					Charge
//	@tag.description			支付凭据接口
//
//	@tag.name					Refund
//	@tag.description			退款接口
//
//	@tag.name					SubApp
//	@tag.description			子商户与渠道参数接口
//
//	@tag.name					Webhook
//	@tag.description			商户回调端点接口
//
//	@tag.name					Notify
//	@tag.description			渠道异步通知接口
package main

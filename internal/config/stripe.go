package config

import "time"

// StripeConfig configures the checkout gateway and webhook verification.
type StripeConfig struct {
	SecretKey     string        // STRIPE_SECRET_KEY
	WebhookSecret string        // STRIPE_WEBHOOK_SECRET, signs inbound events
	Currency      string        // ISO currency of every price, minor units
	SuccessURL    string        // where Checkout sends the customer after paying
	CancelURL     string        // where Checkout sends the customer on abort
	Timeout       time.Duration // bound on a single gateway call
	MaxBodyBytes  int64         // largest webhook payload accepted
}

// LoadStripeConfig reads the Stripe settings.  Keys are required; the
// rest fall back to defaults suited to a JPY deployment.
func LoadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:     must("STRIPE_SECRET_KEY"),
		WebhookSecret: must("STRIPE_WEBHOOK_SECRET"),
		Currency:      envStr("STRIPE_CURRENCY", "jpy"),
		SuccessURL:    envStr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CancelURL:     envStr("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		Timeout:       envDur("STRIPE_TIMEOUT", 10*time.Second),
		MaxBodyBytes:  int64(mustPositive(envInt("STRIPE_WEBHOOK_MAX_BYTES", 65536))),
	}
}

func mustPositive(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

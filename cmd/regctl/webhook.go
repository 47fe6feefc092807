package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v81/webhook"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Work with the Stripe webhook endpoint",
	}
	cmd.AddCommand(webhookSendCmd())
	return cmd
}

// sendOpts describes a synthetic Stripe event.
type sendOpts struct {
	url           string
	secret        string
	eventType     string
	file          string
	sessionID     string
	intentID      string
	email         string
	paymentStatus string
	paymentID     string
	product       string
	receiptURL    string
	cardBrand     string
	timeout       time.Duration
}

func webhookSendCmd() *cobra.Command {
	var o sendOpts
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign and post a test Stripe event",
		Long: `Build a checkout session or charge event (or read one from --file),
sign it with the webhook secret the way Stripe does and post it to the
service.  The secret defaults to STRIPE_WEBHOOK_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.secret == "" {
				o.secret = os.Getenv("STRIPE_WEBHOOK_SECRET")
			}
			if o.secret == "" {
				return errors.New("secret is required (--secret or STRIPE_WEBHOOK_SECRET)")
			}
			payload, err := o.payload()
			if err != nil {
				return err
			}
			status, err := post(o.url, o.secret, payload, o.timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", status, http.StatusText(status))
			if status >= 300 {
				return fmt.Errorf("endpoint answered %d", status)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.url, "url", "http://localhost:8080/v1/webhooks/stripe", "webhook endpoint")
	f.StringVar(&o.secret, "secret", "", "webhook signing secret")
	f.StringVar(&o.eventType, "type", "checkout.session.completed", "event type")
	f.StringVar(&o.file, "file", "", "post this event JSON instead of building one")
	f.StringVar(&o.sessionID, "session", "cs_test_regctl", "checkout session id")
	f.StringVar(&o.intentID, "intent", "pi_test_regctl", "payment intent id")
	f.StringVar(&o.email, "email", "", "customer email")
	f.StringVar(&o.paymentStatus, "payment-status", "paid", "session payment_status")
	f.StringVar(&o.paymentID, "payment-id", "", "internal payment id placed in metadata")
	f.StringVar(&o.product, "product", "", "product reference of the single line item")
	f.StringVar(&o.receiptURL, "receipt-url", "", "receipt url (charge events)")
	f.StringVar(&o.cardBrand, "card-brand", "visa", "card brand (charge events)")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func (o sendOpts) payload() ([]byte, error) {
	if o.file != "" {
		return os.ReadFile(o.file)
	}
	var obj map[string]any
	switch o.eventType {
	case "charge.updated":
		obj = map[string]any{
			"id":             "ch_" + uuid.NewString()[:8],
			"object":         "charge",
			"payment_intent": o.intentID,
			"receipt_url":    o.receiptURL,
			"payment_method_details": map[string]any{
				"type": "card",
				"card": map[string]any{"brand": o.cardBrand},
			},
		}
	default:
		obj = map[string]any{
			"id":               o.sessionID,
			"object":           "checkout.session",
			"payment_status":   o.paymentStatus,
			"payment_intent":   o.intentID,
			"customer_details": map[string]any{"email": o.email},
		}
		if o.paymentID != "" {
			obj["metadata"] = map[string]any{"payment_id": o.paymentID}
		}
		if o.product != "" {
			obj["line_items"] = map[string]any{
				"object": "list",
				"data": []any{map[string]any{
					"id":     "li_regctl",
					"object": "item",
					"price":  map[string]any{"id": "price_regctl", "object": "price", "product": o.product},
				}},
			}
		}
	}
	return json.Marshal(map[string]any{
		"id":      "evt_" + uuid.NewString(),
		"object":  "event",
		"type":    o.eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": obj},
	})
}

func post(url, secret string, payload []byte, timeout time.Duration) (int, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

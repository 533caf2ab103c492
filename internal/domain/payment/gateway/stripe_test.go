package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const testSecret = "whsec_test_secret"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseWebhook(t *testing.T) {
	g := &StripeGateway{webhookSecret: testSecret}

	t.Run("Intent succeeded", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent","amount":180995,"currency":"gbp","status":"succeeded"}}}`)
		evt, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", evt.ID)
		assert.Equal(t, EventIntentSucceeded, evt.Type)
		assert.Equal(t, "pi_123", evt.IntentID)
		assert.Equal(t, int64(180995), evt.Amount)
	})

	t.Run("Intent failed keeps gateway message", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_123","object":"payment_intent","amount":100,"currency":"gbp","status":"requires_payment_method","last_payment_error":{"message":"Your card was declined."}}}}`)
		evt, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "Your card was declined.", evt.FailureMessage)
	})

	t.Run("Charge refunded carries refunds", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_123","amount_refunded":500,"currency":"gbp","refunds":{"object":"list","data":[{"id":"re_1","object":"refund","amount":500,"currency":"gbp","status":"succeeded","payment_intent":"pi_123"}]}}}}`)
		evt, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, EventChargeRefunded, evt.Type)
		assert.Equal(t, "pi_123", evt.IntentID)
		require.Len(t, evt.Refunds, 1)
		assert.Equal(t, Refund{ID: "re_1", IntentID: "pi_123", Amount: 500, Currency: "gbp", Status: RefundSucceeded}, evt.Refunds[0])
	})

	t.Run("Charge refunded without embedded refunds", func(t *testing.T) {
		payload := []byte(`{"id":"evt_6","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_2","object":"charge","payment_intent":"pi_123","amount_refunded":500,"currency":"gbp"}}}`)
		evt, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, EventChargeRefunded, evt.Type)
		assert.Equal(t, "pi_123", evt.IntentID)
		assert.Equal(t, int64(500), evt.Amount)
		assert.Empty(t, evt.Refunds)
	})

	t.Run("Refund object events are normalised", func(t *testing.T) {
		payload := []byte(`{"id":"evt_4","object":"event","type":"refund.updated","data":{"object":{"id":"re_2","object":"refund","amount":300,"currency":"gbp","status":"failed","failure_reason":"expired_or_canceled_card","payment_intent":"pi_9"}}}`)
		evt, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, EventRefundUpdated, evt.Type)
		require.Len(t, evt.Refunds, 1)
		assert.Equal(t, RefundFailed, evt.Refunds[0].Status)
		assert.Equal(t, "expired_or_canceled_card", evt.Refunds[0].FailureReason)
	})

	t.Run("Unknown type passes through", func(t *testing.T) {
		payload := []byte(`{"id":"evt_5","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
		evt, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "customer.created", evt.Type)
		assert.Empty(t, evt.IntentID)
	})

	t.Run("Missing signature", func(t *testing.T) {
		_, err := g.ParseWebhook([]byte(`{}`), "")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
		_, err := g.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("Body modified after signing", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":100}}}`)
		sig := sign(payload, testSecret, time.Now())
		tampered := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":1}}}`)
		_, err := g.ParseWebhook(tampered, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("Stale timestamp", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
		_, err := g.ParseWebhook(payload, sign(payload, testSecret, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func newTestGateway(t *testing.T, h http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &StripeGateway{
		api:         client.New("sk_test_123", &stripe.Backends{API: backend}),
		callTimeout: time.Second,
	}
}

func TestListRefunds(t *testing.T) {
	t.Run("Filters by payment intent", func(t *testing.T) {
		var query string
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/refunds", r.URL.Path)
			query = r.URL.Query().Get("payment_intent")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","url":"/v1/refunds","has_more":false,"data":[
				{"id":"re_1","object":"refund","amount":500,"currency":"gbp","status":"succeeded","payment_intent":"pi_123"},
				{"id":"re_2","object":"refund","amount":200,"currency":"gbp","status":"pending"}]}`)
		})

		refunds, err := g.ListRefunds(context.Background(), "pi_123")
		require.NoError(t, err)
		assert.Equal(t, "pi_123", query)
		require.Len(t, refunds, 2)
		assert.Equal(t, Refund{ID: "re_1", IntentID: "pi_123", Amount: 500, Currency: "gbp", Status: RefundSucceeded}, refunds[0])
		assert.Equal(t, "pi_123", refunds[1].IntentID)
		assert.Equal(t, RefundPending, refunds[1].Status)
	})

	t.Run("Gateway error", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such payment_intent: 'pi_x'"}}`)
		})

		_, err := g.ListRefunds(context.Background(), "pi_x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No such payment_intent")
	})
}

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		JWT:      JWTConfig{Secret: strings.Repeat("s", 32)},
		Database: DatabaseConfig{Host: "localhost", User: "shop", DBName: "shop", Port: "5432", SSLMode: "disable"},
		App:      AppConfig{Env: "prod"},
		Stripe:   StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_x", Currency: "gbp"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid config", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Short JWT secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWT.Secret = "short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Missing webhook secret outside test env", func(t *testing.T) {
		cfg := validConfig()
		cfg.Stripe.WebhookSecret = ""
		assert.ErrorContains(t, cfg.Validate(), "webhook secret")
	})

	t.Run("Stripe keys optional in test env", func(t *testing.T) {
		cfg := validConfig()
		cfg.App.Env = "test"
		cfg.Stripe.SecretKey = ""
		cfg.Stripe.WebhookSecret = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Kafka enabled without brokers", func(t *testing.T) {
		cfg := validConfig()
		cfg.Kafka.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}

func TestDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "pw"
	assert.Equal(t, "postgres://shop:pw@localhost:5432/shop?sslmode=disable", cfg.Database.URL())
}

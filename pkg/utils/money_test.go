package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "1809.95 GBP", FormatMinor(180995, "gbp"))
	assert.Equal(t, "0.05 USD", FormatMinor(5, "usd"))
	assert.Equal(t, "-3.00 EUR", FormatMinor(-300, "eur"))
}

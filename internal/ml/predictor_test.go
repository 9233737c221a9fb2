package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatures(t *testing.T) {
	indicators := map[string]float64{
		"ema_9":  101.5,
		"rsi":    42.0,
		"atr":    1.2,
		"unused": 9.9,
	}

	columns := []string{"ema_9", "rsi", "missing", "atr"}
	got := Features(columns, indicators)

	require.Len(t, got, 4)
	assert.Equal(t, 101.5, got[0])
	assert.Equal(t, 42.0, got[1])
	assert.Equal(t, 0.0, got[2], "missing columns default to zero")
	assert.Equal(t, 1.2, got[3])
}

func TestONNXClassifierWithoutModel(t *testing.T) {
	c := NewONNXClassifier("", nil)

	assert.False(t, c.IsLoaded())
	assert.Equal(t, DefaultFeatureColumns(), c.FeatureColumns())

	_, err := c.Predict(make([]float64, len(c.FeatureColumns())))
	assert.ErrorIs(t, err, ErrModelUnavailable)

	// Close on an unloaded classifier is a no-op.
	c.Close()
	assert.False(t, c.IsLoaded())
}

func TestSoftmax2(t *testing.T) {
	sell, buy := softmax2(0, 0)
	assert.InDelta(t, 0.5, sell, 1e-9)
	assert.InDelta(t, 0.5, buy, 1e-9)

	sell, buy = softmax2(-2, 2)
	assert.Greater(t, buy, sell)
	assert.InDelta(t, 1.0, sell+buy, 1e-9)
}

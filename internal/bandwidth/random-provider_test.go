package bandwidth

import (
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestNewRandomSpeedProvider_ShouldRefuseInvalidBounds(t *testing.T) {
	_, err := NewRandomSpeedProvider(nil)
	assert.True(t, validationutils.IsFatalConfigurationError(err))

	_, err = NewRandomSpeedProvider(&SpeedProviderConfig{MinimumBytesPerSeconds: -1, MaximumBytesPerSeconds: 10})
	assert.True(t, validationutils.IsFatalConfigurationError(err))

	_, err = NewRandomSpeedProvider(&SpeedProviderConfig{MinimumBytesPerSeconds: 10, MaximumBytesPerSeconds: 9})
	assert.True(t, validationutils.IsFatalConfigurationError(err))
}

func TestRandomSpeedProvider_ShouldReturnExactValueWhenBoundsAreEqual(t *testing.T) {
	r, err := NewRandomSpeedProvider(&SpeedProviderConfig{MinimumBytesPerSeconds: 100000, MaximumBytesPerSeconds: 100000})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.Equal(t, int64(100000), r.Sample())
	}
}

func TestRandomSpeedProvider_ShouldSampleWithinBounds(t *testing.T) {
	r, err := NewRandomSpeedProvider(&SpeedProviderConfig{MinimumBytesPerSeconds: 100000, MaximumBytesPerSeconds: 200000})
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		v := r.Sample()
		assert.GreaterOrEqual(t, v, int64(100000))
		assert.Less(t, v, int64(200000))
	}
}

func TestSpeedProviderConfig_DefaultShouldBeValid(t *testing.T) {
	_, err := NewRandomSpeedProvider(SpeedProviderConfig{}.Default())
	assert.NoError(t, err)
	_, err = NewDispatcher(DispatcherConfig{}.Default())
	assert.NoError(t, err)
}

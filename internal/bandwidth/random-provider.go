package bandwidth

import (
	"github.com/anthonyraymond/joal-seeder/internal/randutils"
	"github.com/anthonyraymond/joal-seeder/internal/seed"
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
)

var _ seed.SpeedSampler = &RandomSpeedProvider{}

// RandomSpeedProvider draws a speed in [min, max) on every call, or exactly min when both bounds are equal.
type RandomSpeedProvider struct {
	minimumBytesPerSeconds int64
	maximumBytesPerSeconds int64
}

func NewRandomSpeedProvider(conf *SpeedProviderConfig) (*RandomSpeedProvider, error) {
	if err := validationutils.ValidateStruct("random speed provider", conf); err != nil {
		return nil, err
	}
	return &RandomSpeedProvider{
		minimumBytesPerSeconds: conf.MinimumBytesPerSeconds,
		maximumBytesPerSeconds: conf.MaximumBytesPerSeconds,
	}, nil
}

func (r *RandomSpeedProvider) Sample() int64 {
	return randutils.Range(r.minimumBytesPerSeconds, r.maximumBytesPerSeconds)
}

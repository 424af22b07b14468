package randutils

import (
	"github.com/stretchr/testify/assert"
	"sync"
	"testing"
)

func TestRange(t *testing.T) {
	type args struct {
		minInclusive int64
		maxExclusive int64
	}
	tests := []struct {
		name string
		args args
		want int64
	}{
		{name: "shouldWorkOnRange1", args: args{minInclusive: 1, maxExclusive: 1}, want: 1},
		{name: "shouldWorkOnRange1WithValue0", args: args{minInclusive: 0, maxExclusive: 0}, want: 0},
		{name: "shouldWorkOnRange1WithValue-1", args: args{minInclusive: -1, maxExclusive: -1}, want: -1},
		{name: "shouldWorkOnSingleValueRange", args: args{minInclusive: 5, maxExclusive: 6}, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Range(tt.args.minInclusive, tt.args.maxExclusive); got != tt.want {
				t.Errorf("Range() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeNegativeMinPositiveMax(t *testing.T) {
	for i := 1; i < 500; i++ {
		min := int64(-50)
		max := int64(i)
		actual := Range(min, max)
		assert.Less(t, actual, max)
		assert.GreaterOrEqual(t, actual, min)
	}
}

func TestRangeShouldBeSafeForConcurrentUse(t *testing.T) {
	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				v := Range(100000, 200000)
				assert.GreaterOrEqual(t, v, int64(100000))
				assert.Less(t, v, int64(200000))
			}
		}()
	}
	wg.Wait()
}

func TestRangeUint32(t *testing.T) {
	for i := 0; i < 500; i++ {
		v := RangeUint32(10, 12)
		assert.GreaterOrEqual(t, v, uint32(10))
		assert.LessOrEqual(t, v, uint32(12))
	}
	assert.Equal(t, uint32(7), RangeUint32(7, 7))
}

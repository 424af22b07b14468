package randutils

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
)

func NewCryptoSeededSource() mrand.Source {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.BigEndian, &seed)
	return mrand.NewSource(seed)
}

// math/rand sources built with NewSource are not safe for concurrent use, every session samples from its own goroutine
var globalRand = mrand.New(NewCryptoSeededSource())
var globalRandLock = &sync.Mutex{}

// Range returns a random number in [minInclusive, maxExclusive). If both bounds are equal the bound itself is returned.
func Range(minInclusive int64, maxExclusive int64) int64 {
	if minInclusive >= maxExclusive {
		return minInclusive
	}
	globalRandLock.Lock()
	defer globalRandLock.Unlock()
	return globalRand.Int63n(maxExclusive-minInclusive) + minInclusive
}

// RangeUint32 returns a random number in [minInclusive, maxInclusive]
func RangeUint32(minInclusive uint32, maxInclusive uint32) uint32 {
	if minInclusive >= maxInclusive {
		return minInclusive
	}
	return uint32(Range(int64(minInclusive), int64(maxInclusive)+1))
}

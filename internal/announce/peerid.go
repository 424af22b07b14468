package announce

import (
	"fmt"
	"github.com/anthonyraymond/joal-seeder/internal/randutils"
	"github.com/lucasjones/reggen"
	"github.com/pkg/errors"
)

const PeerIdLength = 20

type PeerId [PeerIdLength]byte

// GeneratePeerId builds a peer id matching the pattern, the result is truncated or zero padded to 20 bytes.
func GeneratePeerId(pattern string) (PeerId, error) {
	generator, err := reggen.NewGenerator(pattern)
	if err != nil {
		return PeerId{}, errors.Wrapf(err, "bad peer id pattern '%s'", pattern)
	}
	var pid PeerId
	copy(pid[:], generator.Generate(10))
	return pid, nil
}

type Key uint32

func (k Key) String() string {
	return fmt.Sprintf("%08X", uint32(k))
}

type KeyConfig struct {
	Min uint32 `yaml:"min"`
	Max uint32 `yaml:"max" validate:"gtefield=Min"`
}

func (c KeyConfig) Default() *KeyConfig {
	return &KeyConfig{
		Min: 1,
		Max: 0xFFFFFFFF,
	}
}

func GenerateKey(conf *KeyConfig) (Key, error) {
	if conf.Min > conf.Max {
		return 0, errors.New("'max' must be greater or equal to 'min' for key generation")
	}
	return Key(randutils.RangeUint32(conf.Min, conf.Max)), nil
}

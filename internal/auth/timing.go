package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the artificial delay applied to failed logins so
// "user not found" and "wrong password" take similar time.
type TimingConfig struct {
	BaseDelayMs   int
	RandomDelayMs int
}

// TimingDelay pads authentication failures with a base plus random delay.
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// WaitOnFailure sleeps only when the operation failed.
func (td *TimingDelay) WaitOnFailure(success bool) {
	if success {
		return
	}

	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		delay += time.Duration(cryptoRandIntn(td.config.RandomDelayMs)) * time.Millisecond
	}
	time.Sleep(delay)
}

// cryptoRandIntn returns a random int in [0, max) from crypto/rand.
func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}

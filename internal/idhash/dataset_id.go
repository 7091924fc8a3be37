package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/mr-tron/base58"

	"backtest-lab/internal/domain"
)

// DatasetID computes a deterministic dataset id from the raw uploaded bytes.
// Returns the base58-encoded SHA256 digest.
func DatasetID(data []byte) string {
	hash := sha256.Sum256(data)
	return base58.Encode(hash[:])
}

// DatasetIDFromBars computes a dataset id from parsed bars, so the same data
// gets the same id regardless of source formatting.
// Formula: SHA256(symbol | for each bar: unix_nanos, open, high, low, close,
// adjusted_close, volume, dividend, split as big-endian 64-bit words)
func DatasetIDFromBars(symbol string, bars []domain.Bar) string {
	h := sha256.New()
	h.Write([]byte(symbol))
	h.Write([]byte{'|'})

	var buf [8]byte
	word := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	for _, b := range bars {
		word(uint64(b.Timestamp.UnixNano()))
		for _, v := range [...]float64{
			b.Open, b.High, b.Low, b.Close, b.AdjustedClose,
			b.Volume, b.DividendAmount, b.SplitCoefficient,
		} {
			word(math.Float64bits(v))
		}
	}

	return base58.Encode(h.Sum(nil))
}

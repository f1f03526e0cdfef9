// Package serialize compresses catalog snapshots for transport to the
// engine. Encoders and decoders are created once and reused; both are safe
// for concurrent use.
package serialize

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	initOnce sync.Once
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	initErr  error
)

func initCodecs() {
	encoder, initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if initErr != nil {
		return
	}
	decoder, initErr = zstd.NewReader(nil)
}

// Compress compresses data with ZStandard at the default level.
func Compress(data []byte) ([]byte, error) {
	initOnce.Do(initCodecs)
	if initErr != nil {
		return nil, fmt.Errorf("serialize: init zstd: %w", initErr)
	}
	if len(data) == 0 {
		return []byte{}, nil
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	initOnce.Do(initCodecs)
	if initErr != nil {
		return nil, fmt.Errorf("serialize: init zstd: %w", initErr)
	}
	if len(data) == 0 {
		return []byte{}, nil
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("serialize: decompress: %w", err)
	}
	return out, nil
}

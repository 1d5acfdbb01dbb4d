package storage

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// blobCodec compresses serialized sketches before they hit the database.
// Encoder and decoder are only used through EncodeAll/DecodeAll, which are
// safe for concurrent use.
type blobCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// newBlobCodec builds a codec for the given zstd level; 0 selects the
// library default.
func newBlobCodec(level int) (*blobCodec, error) {
	encoderLevel := zstd.SpeedDefault
	if level != 0 {
		encoderLevel = zstd.EncoderLevelFromZstd(level)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &blobCodec{encoder: encoder, decoder: decoder}, nil
}

// pack compresses raw and returns the blob with the checksum of raw.
func (c *blobCodec) pack(raw []byte) ([]byte, uint64) {
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), xxhash.Sum64(raw)
}

// unpack decompresses blob and verifies it against checksum.
func (c *blobCodec) unpack(blob []byte, checksum uint64) ([]byte, error) {
	raw, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress sketch: %w", err)
	}
	if sum := xxhash.Sum64(raw); sum != checksum {
		return nil, fmt.Errorf("checksum %016x does not match %016x: %w", sum, checksum, ErrCorrupt)
	}
	return raw, nil
}

func (c *blobCodec) close() {
	c.encoder.Close()
	c.decoder.Close()
}

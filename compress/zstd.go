package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Encoder/decoder pools shared by all ZSTD codecs.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// ZSTDCodec compresses with ZSTD blocks. It is a pure software codec:
// Available always reports false, so a cache configured with it never
// creates compressed regions unless decompression fallback forces the
// software path.
type ZSTDCodec struct{}

// NewZSTDCodec returns the software ZSTD codec.
func NewZSTDCodec() *ZSTDCodec { return &ZSTDCodec{} }

// Kind implements Codec.
func (c *ZSTDCodec) Kind() Kind { return KindZSTD }

// Available implements Codec.
func (c *ZSTDCodec) Available() bool { return false }

// Compress implements Codec.
func (c *ZSTDCodec) Compress(src []byte, chunkSize int) (*Blob, error) {
	blob := &Blob{Kind: KindZSTD, RawSize: len(src)}
	if len(src) == 0 {
		return blob, nil
	}

	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)

	blob.Chunks = chunkSpans(len(src), chunkSize)
	for i := range blob.Chunks {
		ch := &blob.Chunks[i]
		raw := src[ch.RawOff : ch.RawOff+ch.RawLen]

		ch.Off = len(blob.Data)
		blob.Data = enc.EncodeAll(raw, blob.Data)
		ch.Len = len(blob.Data) - ch.Off
	}
	return blob, nil
}

// Decompress implements Codec.
func (c *ZSTDCodec) Decompress(blob *Blob, dst []byte) error {
	if err := checkDst(blob, dst); err != nil {
		return err
	}

	dec := getZstdDecoder()
	defer zstdDecoderPool.Put(dec)

	for i := range blob.Chunks {
		ch := &blob.Chunks[i]
		if ch.Off+ch.Len > len(blob.Data) {
			return fmt.Errorf("%w: chunk %d extends beyond data", ErrCorrupt, i)
		}
		data := blob.Data[ch.Off : ch.Off+ch.Len]
		out := dst[ch.RawOff:ch.RawOff]

		decoded, err := dec.DecodeAll(data, out)
		if err != nil {
			return fmt.Errorf("compress: zstd chunk %d: %w", i, err)
		}
		if len(decoded) != ch.RawLen {
			return fmt.Errorf("%w: chunk %d decompressed to %d bytes, want %d", ErrCorrupt, i, len(decoded), ch.RawLen)
		}
		// DecodeAll only promises the returned slice; copy if it did not
		// append in place.
		if &decoded[0] != &dst[ch.RawOff] {
			copy(dst[ch.RawOff:ch.RawOff+ch.RawLen], decoded)
		}
	}
	return nil
}

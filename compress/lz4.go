package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Codec compresses with LZ4 blocks, the format consumed by the hardware
// decompression engine. Available reflects the engine capability query; the
// Go decompression path doubles as the software fallback.
type LZ4Codec struct {
	available bool
}

// NewLZ4Codec returns an LZ4 codec whose engine capability is reported as
// available.
func NewLZ4Codec() *LZ4Codec { return &LZ4Codec{available: true} }

// NewLZ4CodecUnavailable returns an LZ4 codec that reports no hardware
// engine. Useful for exercising the no-compressed-region path.
func NewLZ4CodecUnavailable() *LZ4Codec { return &LZ4Codec{} }

// Kind implements Codec.
func (c *LZ4Codec) Kind() Kind { return KindLZ4 }

// Available implements Codec.
func (c *LZ4Codec) Available() bool { return c.available }

// Compress implements Codec. Chunks that do not shrink are stored raw.
func (c *LZ4Codec) Compress(src []byte, chunkSize int) (*Blob, error) {
	blob := &Blob{Kind: KindLZ4, RawSize: len(src)}
	if len(src) == 0 {
		return blob, nil
	}

	blob.Chunks = chunkSpans(len(src), chunkSize)
	scratch := make([]byte, lz4.CompressBlockBound(chunkSizeOf(blob.Chunks)))
	for i := range blob.Chunks {
		ch := &blob.Chunks[i]
		raw := src[ch.RawOff : ch.RawOff+ch.RawLen]

		n, err := lz4.CompressBlock(raw, scratch, nil)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4 chunk %d: %w", i, err)
		}

		ch.Off = len(blob.Data)
		if n == 0 || n >= len(raw) {
			// Incompressible, store verbatim.
			ch.Len = len(raw)
			ch.Raw = true
			blob.Data = append(blob.Data, raw...)
		} else {
			ch.Len = n
			blob.Data = append(blob.Data, scratch[:n]...)
		}
	}
	return blob, nil
}

// Decompress implements Codec.
func (c *LZ4Codec) Decompress(blob *Blob, dst []byte) error {
	if err := checkDst(blob, dst); err != nil {
		return err
	}

	for i := range blob.Chunks {
		ch := &blob.Chunks[i]
		if ch.Off+ch.Len > len(blob.Data) {
			return fmt.Errorf("%w: chunk %d extends beyond data", ErrCorrupt, i)
		}
		data := blob.Data[ch.Off : ch.Off+ch.Len]
		out := dst[ch.RawOff : ch.RawOff+ch.RawLen]

		if ch.Raw {
			copy(out, data)
			continue
		}
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return fmt.Errorf("compress: lz4 chunk %d: %w", i, err)
		}
		if n != ch.RawLen {
			return fmt.Errorf("%w: chunk %d decompressed to %d bytes, want %d", ErrCorrupt, i, n, ch.RawLen)
		}
	}
	return nil
}

func chunkSizeOf(chunks []Chunk) int {
	max := 0
	for _, ch := range chunks {
		if ch.RawLen > max {
			max = ch.RawLen
		}
	}
	return max
}

// Package compress provides the block codecs behind the compressed host
// tier of the cache. A codec compresses a byte range into fixed-size chunks
// whose boundaries are recorded in a descriptor, and later decompresses them
// asynchronously on an execution stream so reconstruction overlaps with
// computation.
//
// Two codecs are provided: LZ4 models the hardware decompression engine
// (Available reports its capability) and ZSTD is the software path used when
// no engine is present or as the fallback after an engine failure.
package compress

import (
	"errors"
	"fmt"

	"github.com/hupe1980/tiercache/devmem"
)

// DefaultChunkSize is the decompressed chunk granularity. Chunks are sized
// so the engine can decompress them independently and in parallel.
const DefaultChunkSize = 256 * 1024

// ErrCorrupt indicates a blob that does not round-trip (truncated data or a
// chunk whose decompressed size disagrees with its descriptor).
var ErrCorrupt = errors.New("compress: corrupt blob")

// Kind identifies a codec.
type Kind uint8

const (
	// KindLZ4 is LZ4 block compression, decompressed by the hardware engine
	// when one is available.
	KindLZ4 Kind = iota + 1
	// KindZSTD is ZSTD block compression, software only.
	KindZSTD
)

// String returns the codec name.
func (k Kind) String() string {
	switch k {
	case KindLZ4:
		return "lz4"
	case KindZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Chunk describes one independently decompressible chunk of a blob: its
// byte range within the compressed data and within the decompressed output.
// Raw marks an incompressible chunk stored verbatim.
type Chunk struct {
	Off    int
	Len    int
	RawOff int
	RawLen int
	Raw    bool
}

// Blob is a compressed byte range plus the decompression descriptor the
// reader needs: the codec kind, the chunk boundaries, and the exact
// decompressed size.
type Blob struct {
	Kind    Kind
	Data    []byte
	Chunks  []Chunk
	RawSize int
}

// SizeBytes returns the compressed byte size.
func (b *Blob) SizeBytes() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Data))
}

// DecompressedSize returns the exact decompressed byte size.
func (b *Blob) DecompressedSize() int64 {
	if b == nil {
		return 0
	}
	return int64(b.RawSize)
}

// Codec is the compression service collaborator: a capability query, a
// synchronous compress/decompress pair, and an asynchronous decompress that
// runs on an execution stream and signals completion through an event.
type Codec interface {
	Kind() Kind

	// Available reports whether the accelerated decompression engine backing
	// this codec can be used. The cache only creates compressed regions when
	// this is true.
	Available() bool

	// Compress splits src into chunks of at most chunkSize decompressed
	// bytes and compresses each independently. chunkSize <= 0 means
	// DefaultChunkSize. src may be released after the call returns.
	Compress(src []byte, chunkSize int) (*Blob, error)

	// Decompress is the synchronous software path. dst must be exactly
	// blob.RawSize bytes.
	Decompress(blob *Blob, dst []byte) error
}

// DecompressAsync schedules decompression of blob into dst on the given
// stream and returns the completion event. dst must be exactly blob.RawSize
// bytes and must not be read before the event completes.
func DecompressAsync(c Codec, s *devmem.Stream, blob *Blob, dst []byte) *devmem.Event {
	return s.Submit(blob.RawSize, func() error {
		return c.Decompress(blob, dst)
	})
}

func checkDst(blob *Blob, dst []byte) error {
	if len(dst) != blob.RawSize {
		return fmt.Errorf("compress: dst size %d does not match decompressed size %d", len(dst), blob.RawSize)
	}
	return nil
}

// chunkSpans yields the decompressed [off, off+n) spans for src under the
// given chunk size.
func chunkSpans(srcLen, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := make([]Chunk, 0, (srcLen+chunkSize-1)/chunkSize)
	for off := 0; off < srcLen; off += chunkSize {
		n := srcLen - off
		if n > chunkSize {
			n = chunkSize
		}
		chunks = append(chunks, Chunk{RawOff: off, RawLen: n})
	}
	return chunks
}

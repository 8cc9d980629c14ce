package tiercache

import (
	"context"

	"github.com/hupe1980/tiercache/devmem"
	"github.com/hupe1980/tiercache/hostmem"
	"github.com/hupe1980/tiercache/page"
	"github.com/hupe1980/tiercache/plan"
	"github.com/hupe1980/tiercache/store"
)

// Writer is the write-pass contract shared by every cache backend: exact
// boundary seeking plus in-order page writes.
type Writer interface {
	Seek(off int64) error
	Write(ctx context.Context, p *page.OriginalPage) (newSlot bool, err error)
}

// Reader is the read-pass contract shared by every cache backend. The
// cursor is advanced explicitly; Read never auto-increments.
type Reader interface {
	Seek(off int64) error
	Advance() bool
	Read(ctx context.Context, out *page.Page, materialize bool) error
}

// Backend abstracts the page cache storage policy behind the shared
// writer/reader contract. The in-memory tiered cache implemented here is one
// backend; a disk-mapped cache persisting pages as flat byte ranges is an
// external alternative selected by the caller.
type Backend interface {
	NewWriter() Writer
	NewReader() Reader
	SizeBytes() int64
	Slots() int
	Close() error
}

// Select returns the backend to use: alt when the caller supplies one (for
// example a disk-mapped cache), otherwise a new in-memory tiered cache.
func Select(batches []plan.BatchInfo, alt Backend, opts ...Option) (Backend, error) {
	if alt != nil {
		return alt, nil
	}
	return New(batches, opts...)
}

// Cache is the in-memory tiered page cache: one shared tiered store handed
// to a single writer per write pass and any number of concurrent readers on
// replay passes, so every pass reuses the exact byte layout produced by the
// first.
type Cache struct {
	info    *plan.CacheInfo
	store   *store.TieredStore
	dev     *devmem.Pool
	host    *hostmem.Pool
	streams *devmem.StreamPool
	log     *Logger
}

var _ Backend = (*Cache)(nil)

// New plans the cache layout from the batch metadata and creates an empty
// cache ready for the build pass.
func New(batches []plan.BatchInfo, optFns ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	info, err := plan.Plan(batches, plan.Options{
		HostRatio:           o.hostRatio,
		MinCachePageBytes:   o.minCachePageBytes,
		HWDecompRatio:       o.hwDecompRatio,
		AllowDecompFallback: o.allowDecompFallback,
		Validation:          o.validation,
		Policy:              o.policy,
	})
	if err != nil {
		return nil, err
	}

	dev := devmem.NewPool(o.deviceBudget)
	host := hostmem.NewPool(o.hostBudget)

	var streamOpts []devmem.StreamPoolOption
	if o.ioLimitBytesPerSec > 0 {
		streamOpts = append(streamOpts, devmem.WithThroughputLimit(o.ioLimitBytesPerSec))
	}
	streams := devmem.NewStreamPool(o.streams, streamOpts...)

	st, err := store.New(store.Config{
		Info:      info,
		Device:    dev,
		Host:      host,
		Codec:     o.codec,
		ChunkSize: o.chunkSize,
		Logger:    o.logger.Logger,
		Metrics:   o.metrics,
	})
	if err != nil {
		streams.Close()
		return nil, err
	}

	o.logger.Debug("cache planned",
		"batches", len(batches),
		"slots", info.Slots(),
		"total_bytes", info.TotalBytes,
		"host_ratio", info.HostRatio,
		"no_concat", info.NoConcat,
	)

	return &Cache{
		info:    info,
		store:   st,
		dev:     dev,
		host:    host,
		streams: streams,
		log:     o.logger,
	}, nil
}

// Info returns the planned layout.
func (c *Cache) Info() *plan.CacheInfo { return c.info }

// Store exposes the underlying tiered store for inspection.
func (c *Cache) Store() *store.TieredStore { return c.store }

// NewWriter returns the writer for a write pass. One write pass at a time;
// the writer is not safe for concurrent use.
func (c *Cache) NewWriter() Writer { return c.store.NewWriter() }

// NewReader returns an independent reader for a replay pass. Readers may run
// concurrently once the build pass has committed all slots.
func (c *Cache) NewReader() Reader { return c.store.NewReader(c.streams) }

// SizeBytes returns the total logical byte size of the committed cache.
func (c *Cache) SizeBytes() int64 { return c.store.SizeBytes() }

// Slots returns the number of committed cache slots.
func (c *Cache) Slots() int { return c.store.Committed() }

// DeviceBytes returns the bytes currently held in device memory.
func (c *Cache) DeviceBytes() int64 { return c.dev.Used() }

// HostBytes returns the bytes currently held in host memory.
func (c *Cache) HostBytes() int64 { return c.host.Used() }

// Close drains the stream pool and releases all tier memory.
func (c *Cache) Close() error {
	c.streams.Close()
	return c.store.Close()
}

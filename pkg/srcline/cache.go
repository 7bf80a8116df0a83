package srcline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/internal/utils"
)

// Unresolved is the source line of an address the resolver could not map.
const Unresolved = "-"

var (
	ErrBinaryEmpty   = errors.New("binary path is empty")
	ErrResolverNil   = errors.New("source line resolver is nil")
	ErrResolverCount = errors.New("resolver returned a wrong number of lines")
)

// Resolver maps instruction addresses of a binary to "file:line" strings,
// one per address, Unresolved when unknown.
type Resolver interface {
	Resolve(ctx context.Context, binary string, addrs []uint64) ([]string, error)
}

type entries struct {
	addrs map[string]uint64
	lines map[string]string
}

type CacheOptions struct {
	binary   string
	resolver Resolver

	logger log.Logger
}

type CacheOption func(*Cache)

func WithCacheBinary(binary string) CacheOption {
	return func(c *Cache) {
		c.binary = binary
	}
}

func WithCacheResolver(resolver Resolver) CacheOption {
	return func(c *Cache) {
		c.resolver = resolver
	}
}

func WithCacheLogger(logger log.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache maps child keys to the address of their call site, then, once
// Process ran, to the source line of that address. It is written by every
// thread analysis concurrently.
type Cache struct {
	m *utils.RWMutex[*entries]
	*CacheOptions
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		m: utils.NewRWMutex(&entries{
			addrs: make(map[string]uint64),
			lines: make(map[string]string),
		}),
		CacheOptions: &CacheOptions{
			logger: log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Put records the address of key. The first address recorded wins.
func (c *Cache) Put(key string, addr uint64) {
	e, runlock := c.m.RLock()
	_, ok := e.addrs[key]
	runlock.RUnlock()
	if ok {
		return
	}

	e, unlock := c.m.Lock()
	defer unlock.Unlock()
	if _, ok := e.addrs[key]; !ok {
		e.addrs[key] = addr
	}
}

// Addr returns the address recorded for key.
func (c *Cache) Addr(key string) (uint64, bool) {
	e, runlock := c.m.RLock()
	defer runlock.RUnlock()

	addr, ok := e.addrs[key]
	return addr, ok
}

// Get returns the source line of key, Unresolved when unknown.
func (c *Cache) Get(key string) (string, bool) {
	e, runlock := c.m.RLock()
	defer runlock.RUnlock()

	line, ok := e.lines[key]
	if !ok {
		return Unresolved, false
	}
	return line, true
}

func (c *Cache) Len() int {
	e, runlock := c.m.RLock()
	defer runlock.RUnlock()

	return len(e.addrs)
}

// Process resolves every recorded address in one batch.
func (c *Cache) Process(ctx context.Context) error {
	if c.binary == "" {
		return ErrBinaryEmpty
	}
	if c.resolver == nil {
		return ErrResolverNil
	}

	e, unlock := c.m.Lock()
	defer unlock.Unlock()

	keys := make([]string, 0, len(e.addrs))
	addrs := make([]uint64, 0, len(e.addrs))
	for key, addr := range e.addrs {
		keys = append(keys, key)
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil
	}

	start := time.Now()
	lines, err := c.resolver.Resolve(ctx, c.binary, addrs)
	if err != nil {
		return errors.Wrap(err, "failed to resolve source lines")
	}
	if len(lines) != len(addrs) {
		return errors.Wrapf(ErrResolverCount, "%d lines for %d addresses", len(lines), len(addrs))
	}
	for i, key := range keys {
		e.lines[key] = lines[i]
	}
	c.logger.Debug().
		Int("addresses", len(addrs)).
		Str("binary", c.binary).
		Dur("elapsed", time.Since(start)).
		Msg("source lines resolved")

	return nil
}

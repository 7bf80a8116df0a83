package srcline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAddr2Line = "addr2line"
	DefaultBatchSize = 512

	discriminator = " (discriminator"
	unknownLine   = "??"
)

var ErrBatchSize = errors.New("batch size must be positive")

type Addr2LineOptions struct {
	path      string
	batchSize int
	parallel  int

	logger log.Logger
}

type Addr2LineOption func(*Addr2Line)

func WithAddr2LinePath(path string) Addr2LineOption {
	return func(a *Addr2Line) {
		a.path = path
	}
}

func WithAddr2LineBatchSize(size int) Addr2LineOption {
	return func(a *Addr2Line) {
		a.batchSize = size
	}
}

func WithAddr2LineParallel(n int) Addr2LineOption {
	return func(a *Addr2Line) {
		a.parallel = n
	}
}

func WithAddr2LineLogger(logger log.Logger) Addr2LineOption {
	return func(a *Addr2Line) {
		a.logger = logger
	}
}

// Addr2Line resolves addresses with the binutils addr2line program, one
// subprocess per batch of addresses.
type Addr2Line struct {
	*Addr2LineOptions
}

func NewAddr2Line(opts ...Addr2LineOption) *Addr2Line {
	a := &Addr2Line{
		Addr2LineOptions: &Addr2LineOptions{
			path:      DefaultAddr2Line,
			batchSize: DefaultBatchSize,
			parallel:  1,
			logger:    log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Addr2Line) Resolve(ctx context.Context, binary string, addrs []uint64) ([]string, error) {
	if a.batchSize <= 0 {
		return nil, ErrBatchSize
	}
	lines := make([]string, len(addrs))

	g, ctx := errgroup.WithContext(ctx)
	if a.parallel > 0 {
		g.SetLimit(a.parallel)
	}
	for start := 0; start < len(addrs); start += a.batchSize {
		start := start
		end := min(start+a.batchSize, len(addrs))
		g.Go(func() error {
			out, err := a.run(ctx, binary, addrs[start:end])
			if err != nil {
				return err
			}
			copy(lines[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (a *Addr2Line) run(ctx context.Context, binary string, addrs []uint64) ([]string, error) {
	args := make([]string, 0, len(addrs)+2)
	args = append(args, "-e", binary)
	for _, addr := range addrs {
		args = append(args, fmt.Sprintf("%#x", addr))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debug().Str("binary", binary).Int("addresses", len(addrs)).Msg("running addr2line")
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "%s failed: %s", a.path, strings.TrimSpace(stderr.String()))
	}

	lines, err := ParseOutput(&stdout)
	if err != nil {
		return nil, err
	}
	if len(lines) != len(addrs) {
		return nil, errors.Wrapf(ErrResolverCount, "%d lines for %d addresses", len(lines), len(addrs))
	}

	return lines, nil
}

// ParseOutput reads one "file:line" per line of addr2line output, mapping
// unknown locations to Unresolved and dropping discriminator annotations.
func ParseOutput(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, normalize(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read addr2line output")
	}

	return lines, nil
}

func normalize(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.Index(line, discriminator); i >= 0 {
		line = line[:i]
	}
	if line == "" || strings.HasPrefix(line, unknownLine) {
		return Unresolved
	}

	return line
}

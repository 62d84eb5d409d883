package mdio

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pithecene-io/mdio/kvstore"
	"github.com/pithecene-io/mdio/kvstore/gcs"
	"github.com/pithecene-io/mdio/kvstore/s3"
)

// config holds the resolved options of an Open or Create call.
type config struct {
	mode            OpenMode
	opener          *kvstore.Opener
	logger          logrus.FieldLogger
	fullDiagnostics bool
}

// Option configures Open and Create.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(cfg *config) error { return f(cfg) }

// WithOpenMode selects open or create. Default: ModeOpen for Open,
// ModeCreate for Create. The last WithOpenMode wins.
func WithOpenMode(mode OpenMode) Option {
	return optionFunc(func(cfg *config) error {
		cfg.mode = mode
		return nil
	})
}

// WithOpener resolves kvstore specs through o instead of the process-wide
// default opener. Memory stores are only shared between variables opened
// through the same Opener.
func WithOpener(o *kvstore.Opener) Option {
	return optionFunc(func(cfg *config) error {
		if o == nil {
			return fmt.Errorf("WithOpener: nil opener: %w", ErrInvalidArgument)
		}
		cfg.opener = o
		return nil
	})
}

// WithLogger sets the logger for open, create and publish events.
// Default: discard.
func WithLogger(l logrus.FieldLogger) Option {
	return optionFunc(func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("WithLogger: nil logger: %w", ErrInvalidArgument)
		}
		cfg.logger = l
		return nil
	})
}

// WithFullDiagnostics makes metadata validation on open report every
// mismatch instead of stopping at the first.
func WithFullDiagnostics() Option {
	return optionFunc(func(cfg *config) error {
		cfg.fullDiagnostics = true
		return nil
	})
}

func resolveOptions(defaultMode OpenMode, opts []Option) (*config, error) {
	cfg := &config{mode: defaultMode}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, fmt.Errorf("mdio: %w", err)
		}
	}
	if cfg.opener == nil {
		cfg.opener = defaultOpener()
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	return cfg, nil
}

// NewOpener returns a kvstore opener with the file, memory, s3 and gcs
// drivers registered. Cloud clients are built from the environment on first
// use.
func NewOpener() *kvstore.Opener {
	o := kvstore.NewOpener()
	o.Register(kvstore.DriverS3, s3.DefaultDriver())
	o.Register(kvstore.DriverGCS, gcs.DefaultDriver())
	return o
}

var defaultOpener = sync.OnceValue(NewOpener)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

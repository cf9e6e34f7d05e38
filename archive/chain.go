package archive

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// Strategy is one way of getting at archive contents.
type Strategy interface {
	Reader
	Name() string
}

// Chain tries each strategy in order until one succeeds. Callers never learn
// which one answered.
type Chain struct {
	Strategies []Strategy
	Log        *zap.SugaredLogger
}

// New builds the reader for the configured strategy name. "auto" (or empty)
// selects the chain for the host platform.
func New(strategy string, runner Runner, log *zap.SugaredLogger) (*Chain, error) {
	if runner == nil {
		runner = CmdRunner{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var strategies []Strategy
	switch strategy {
	case "", "auto":
		strategies = platformStrategies(runtime.GOOS, runner)
	case "powershell":
		strategies = []Strategy{PowerShell{Runner: runner}, Native{}}
	case "unzip":
		strategies = []Strategy{Unzip{Runner: runner}, Jar{Runner: runner}, Native{}}
	case "native":
		strategies = []Strategy{Native{}}
	default:
		return nil, fmt.Errorf("unknown archive strategy %q", strategy)
	}
	return &Chain{Strategies: strategies, Log: log}, nil
}

func platformStrategies(goos string, runner Runner) []Strategy {
	if goos == "windows" {
		return []Strategy{PowerShell{Runner: runner}, Jar{Runner: runner}, Native{}}
	}
	return []Strategy{Unzip{Runner: runner}, Jar{Runner: runner}, Native{}}
}

func (c *Chain) ListEntries(ctx context.Context, archivePath string) ([]string, error) {
	var errs []error
	for _, s := range c.Strategies {
		entries, err := s.ListEntries(ctx, archivePath)
		if err == nil {
			return entries, nil
		}
		c.logger().Debugw("Archive listing failed, trying next strategy",
			zap.String("strategy", s.Name()), zap.String("archive", archivePath), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ArchiveReadError{Archive: archivePath, Op: "list", Err: errors.Join(errs...)}
}

func (c *Chain) ReadEntry(ctx context.Context, archivePath, entryPath string) ([]byte, error) {
	var errs []error
	for _, s := range c.Strategies {
		data, err := s.ReadEntry(ctx, archivePath, entryPath)
		if err == nil {
			return data, nil
		}
		if IsEntryNotFound(err) {
			return nil, err
		}
		c.logger().Debugw("Archive read failed, trying next strategy",
			zap.String("strategy", s.Name()), zap.String("entry", entryPath), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ArchiveReadError{Archive: archivePath, Op: "read " + entryPath, Err: errors.Join(errs...)}
}

func (c *Chain) logger() *zap.SugaredLogger {
	if c.Log == nil {
		return zap.NewNop().Sugar()
	}
	return c.Log
}

var _ Reader = (*Chain)(nil)

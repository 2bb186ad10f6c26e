package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsccast/yaml"
	"github.com/rs/zerolog"

	"github.com/Comcast/natives/config"
	"github.com/Comcast/natives/executor"
	"github.com/Comcast/natives/ext"
	"github.com/Comcast/natives/interpreters/goja"
	"github.com/Comcast/natives/sio"
	"github.com/Comcast/natives/storage/bolt"
)

// Runner holds the process-wide pieces: the executor, the library
// store, and the sink.
type Runner struct {
	Config *config.Config
	Pool   *executor.Pool
	Store  *bolt.Storage
	Sink   sio.Sink

	Interpreter *goja.Interpreter

	logger zerolog.Logger
}

// NewRunner builds a Runner.  The caller must Close it.
func NewRunner(ctx context.Context, cfg *config.Config, sink sio.Sink, logger zerolog.Logger) (*Runner, error) {
	r := &Runner{
		Config: cfg,
		Pool:   executor.New(cfg.Executor, logger),
		Sink:   sink,
		logger: logger,
	}
	r.Pool.Start()

	schemes := map[string]goja.LibraryProvider{}
	if cfg.Bolt != "" {
		store, err := bolt.Open(cfg.Bolt, logger)
		if err != nil {
			r.Close(ctx)
			return nil, err
		}
		r.Store = store
		schemes[bolt.Scheme] = store.Provider()
	}

	i := goja.NewInterpreter()
	i.Testing = cfg.Testing
	i.Registry = ext.Standard()
	i.Executor = r.Pool
	i.Logger = logger
	i.LibraryProvider = goja.MakeSchemeLibraryProvider(goja.MakeFileLibraryProvider(cfg.LibDir), schemes)
	if sink != nil {
		i.Emit = sink.Emit
	}
	r.Interpreter = i

	return r, nil
}

// NewSink makes the sink that cfg asks for.
func NewSink(ctx context.Context, cfg config.Sink, logger zerolog.Logger) (sio.Sink, error) {
	switch cfg.Kind {
	case "", "stdio":
		return sio.NewStdio(os.Stdout), nil
	case "none":
		return sio.Discard{}, nil
	case "ws":
		s := sio.NewWebSocket(cfg.URL, logger)
		if err := s.Dial(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "mqtt":
		s := sio.NewMQTT(cfg.MQTT, logger)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink kind '%s'", cfg.Kind)
	}
}

// ReadScript reads a script file.  A ".yaml" or ".yml" file holds a
// map with "code" and "requires"; anything else is plain code.
func ReadScript(filename string) (interface{}, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		var x map[string]interface{}
		if err = yaml.Unmarshal(bs, &x); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		return x, nil
	default:
		return string(bs), nil
	}
}

// Run runs one script file within the configured timeout.
func (r *Runner) Run(ctx context.Context, filename string) (*goja.Execution, error) {
	src, err := ReadScript(filename)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.Config.Timeout)
	defer cancel()

	r.logger.Debug().Str("script", filename).Msg("running")
	exe, err := r.Interpreter.Exec(ctx, src, nil)
	if err != nil {
		return exe, fmt.Errorf("%s: %w", filename, err)
	}
	r.logger.Debug().
		Str("script", filename).
		Int("emitted", len(exe.Emitted)).
		Msg("finished")
	return exe, nil
}

// Close stops the executor and closes the store and sink.
func (r *Runner) Close(ctx context.Context) error {
	var errs []error
	if err := r.Pool.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Sink != nil {
		if err := r.Sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

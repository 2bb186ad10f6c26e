package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/Comcast/natives/config"
	"github.com/Comcast/natives/ext"
	"github.com/Comcast/natives/server"
	"github.com/Comcast/natives/sio"
	"github.com/Comcast/natives/storage/bolt"
	"github.com/Comcast/natives/tools"
)

// WatchDebounce coalesces bursts of file events in the watch command.
var WatchDebounce = 100 * time.Millisecond

// Controller carries the configuration shared by the subcommands.
type Controller struct {
	Config *config.Config
	Logger zerolog.Logger

	// Out receives script results.
	Out io.Writer
}

// Configure loads the configuration file (if any) and applies the
// global flags that were set.
func (c *Controller) Configure(cmd *cli.Command) error {
	cfg := config.Default()
	if filename := cmd.String("config"); filename != "" {
		var err error
		if cfg, err = config.Load(filename); err != nil {
			return err
		}
	}

	if cmd.IsSet("workers") {
		cfg.Executor.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("lib-dir") {
		cfg.LibDir = cmd.String("lib-dir")
	}
	if cmd.IsSet("bolt") {
		cfg.Bolt = cmd.String("bolt")
	}
	if cmd.IsSet("sink") {
		cfg.Sink.Kind = cmd.String("sink")
	}
	if cmd.IsSet("sink-url") {
		cfg.Sink.URL = cmd.String("sink-url")
	}
	if cmd.IsSet("testing") {
		cfg.Testing = cmd.Bool("testing")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

func (c *Controller) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Controller) runner(ctx context.Context, sink sio.Sink) (*Runner, error) {
	if sink == nil {
		var err error
		if sink, err = NewSink(ctx, c.Config.Sink, c.Logger); err != nil {
			return nil, err
		}
	}
	return NewRunner(ctx, c.Config, sink, c.Logger)
}

func (c *Controller) report(exe interface{}) error {
	js, err := json.Marshal(exe)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out(), "%s\n", js)
	return err
}

// Run runs each script in order and writes each result as a line of
// JSON.  The first failure stops the run.
func (c *Controller) Run(ctx context.Context, scripts []string) error {
	if len(scripts) == 0 {
		return fmt.Errorf("need at least one script")
	}

	r, err := c.runner(ctx, nil)
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	for _, filename := range scripts {
		exe, err := r.Run(ctx, filename)
		if err != nil {
			return err
		}
		if err = c.report(exe.Result); err != nil {
			return err
		}
	}
	return nil
}

// Watch runs the script now and again after every change until ctx
// is done.  Script failures are logged, not returned.
func (c *Controller) Watch(ctx context.Context, script string) error {
	if script == "" {
		return fmt.Errorf("need a script")
	}

	r, err := c.runner(ctx, nil)
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	run := func() {
		exe, err := r.Run(ctx, script)
		if err != nil {
			c.Logger.Error().Err(err).Str("script", script).Msg("run failed")
			return
		}
		if err = c.report(exe.Result); err != nil {
			c.Logger.Error().Err(err).Msg("report failed")
		}
	}

	run()
	c.Logger.Info().Str("script", script).Msg("watching")
	if err = Watch(ctx, script, WatchDebounce, run); errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Doc renders one module, or every module if name is empty.
func (c *Controller) Doc(out io.Writer, name, format string) error {
	registry := ext.Standard()
	if name != "" {
		m, have := registry.Get(name)
		if !have {
			return fmt.Errorf("no module '%s'", name)
		}
		return tools.Render(m, format, out)
	}
	for _, m := range registry.List() {
		if err := tools.Render(m, format, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) store() (*bolt.Storage, error) {
	if c.Config.Bolt == "" {
		return nil, fmt.Errorf("no library store (use --bolt or the 'bolt' setting)")
	}
	return bolt.Open(c.Config.Bolt, c.Logger)
}

// LibPut stores the contents of filename as library name.
func (c *Controller) LibPut(ctx context.Context, name, filename string) error {
	if name == "" || filename == "" {
		return fmt.Errorf("need a name and a file")
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	s, err := c.store()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Put(ctx, name, string(bs))
}

// LibGet writes library name to out.
func (c *Controller) LibGet(ctx context.Context, out io.Writer, name string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	defer s.Close()
	src, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, src)
	return err
}

// LibList writes the stored library names, one per line.
func (c *Controller) LibList(ctx context.Context, out io.Writer) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	defer s.Close()
	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err = fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

// LibRemove deletes library name.
func (c *Controller) LibRemove(ctx context.Context, name string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Delete(ctx, name)
}

// Serve starts the docs and WebSocket server, runs the given scripts
// with their messages broadcast to WebSocket clients (and the
// configured sink), and then serves until ctx is done.
func (c *Controller) Serve(ctx context.Context, scripts []string) error {
	srv := server.New(c.Config.Server, ext.Standard(), c.Logger)

	sink, err := NewSink(ctx, c.Config.Sink, c.Logger)
	if err != nil {
		return err
	}
	r, err := c.runner(ctx, sio.Multi{srv, sink})
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	served := make(chan error, 1)
	go func() {
		served <- srv.ListenAndServe(ctx)
	}()

	for _, filename := range scripts {
		exe, err := r.Run(ctx, filename)
		if err != nil {
			c.Logger.Error().Err(err).Str("script", filename).Msg("run failed")
			continue
		}
		if err = c.report(exe.Result); err != nil {
			return err
		}
	}

	return <-served
}

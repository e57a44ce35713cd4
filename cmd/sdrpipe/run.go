package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/config"
	"pipelined.dev/sdr/display"
	"pipelined.dev/sdr/metric"
	"pipelined.dev/sdr/module"
	"pipelined.dev/sdr/osc"
	"pipelined.dev/sdr/signalpath"
	"pipelined.dev/sdr/stream"
	"pipelined.dev/sdr/wav"
)

// drainInterval is the polling interval of buffered samples after the
// input is exhausted.
const drainInterval = 10 * time.Millisecond

func newRunCommand(opts *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.logger()
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.config)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return run(cmd.Context(), cfg, l)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address of metrics and display server, overrides configuration")
	return cmd
}

// source is the input block of the receiver.
type source interface {
	sdr.Block
	Out() stream.Reader[complex64]
	SetLogger(logrus.FieldLogger)
	Done() <-chan struct{}
	Err() error
}

// input is the opened source and its properties.
type input struct {
	source
	sampleRate float64
	finite     bool
	close      func() error
}

func openInput(in config.Input) (*input, error) {
	if in.Kind == config.InputTone {
		return &input{
			source:     osc.New(in.Frequency, in.SampleRate),
			sampleRate: in.SampleRate,
			close:      func() error { return nil },
		}, nil
	}
	src, err := wav.Open(in.Path)
	if err != nil {
		return nil, err
	}
	return &input{
		source:     src,
		sampleRate: float64(src.SampleRate()),
		finite:     true,
		close:      src.Close,
	}, nil
}

func run(ctx context.Context, cfg *config.Config, l *logrus.Logger) error {
	in, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer in.close()
	in.SetLogger(l)

	m := metric.New()
	pathOptions := []signalpath.Option{
		signalpath.WithLogger(l),
		signalpath.WithMetric(m),
	}
	var disp *display.Server
	if cfg.Listen != "" && cfg.FFT.Size > 0 {
		disp = display.New(l.WithField("component", "display"))
		defer disp.Close()
		pathOptions = append(pathOptions, signalpath.WithFFT(cfg.FFT.Size, cfg.FFT.Rate, disp.Publish))
	}
	path, err := signalpath.New(in.Out(), in.sampleRate, pathOptions...)
	if err != nil {
		return err
	}
	if err := path.SetDecimation(cfg.Decimation); err != nil {
		return err
	}
	path.SetIQCorrection(cfg.IQCorrection)

	modules := module.NewManager(module.Env{
		Path:   path,
		Log:    l,
		Metric: m,
	})
	defer modules.Close()
	for _, mc := range cfg.Modules {
		if err := modules.Create(mc); err != nil {
			return err
		}
	}

	path.Start()
	modules.Start()
	in.Start()
	l.WithFields(logrus.Fields{
		"input":       cfg.Input.Kind,
		"sample_rate": in.sampleRate,
		"modules":     len(cfg.Modules),
	}).Info("receiver started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		if disp != nil {
			mux.Handle("/fft", disp)
		}
		srv := &http.Server{Addr: cfg.Listen, Handler: mux}
		g.Go(func() error {
			l.WithField("listen", cfg.Listen).Info("server started")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	g.Go(func() error {
		defer cancel()
		select {
		case <-ctx.Done():
			return nil
		case <-in.Done():
		}
		if err := in.Err(); err != nil {
			return err
		}
		if !in.finite {
			return nil
		}
		return drain(ctx, func() int {
			return in.Out().Readable() + path.Buffered() + modules.Buffered()
		})
	})
	err = g.Wait()

	in.Stop()
	if cerr := modules.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	path.Stop()
	l.Info("receiver stopped")
	return err
}

// drain waits until all samples of the finite input are processed.
func drain(ctx context.Context, buffered func() int) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		if buffered() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

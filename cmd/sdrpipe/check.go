package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pipelined.dev/sdr/config"
	"pipelined.dev/sdr/module"
	"pipelined.dev/sdr/vfo"
	"pipelined.dev/sdr/wav"
)

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print resampling plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.config)
			if err != nil {
				return err
			}
			return check(cmd, cfg)
		},
	}
}

// inputRate returns sample rate of configured input.
func inputRate(in config.Input) (float64, error) {
	if in.Kind == config.InputTone {
		return in.SampleRate, nil
	}
	src, err := wav.Open(in.Path)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return float64(src.SampleRate()), nil
}

func check(cmd *cobra.Command, cfg *config.Config) error {
	sampleRate, err := inputRate(cfg.Input)
	if err != nil {
		return err
	}
	rate := sampleRate / float64(cfg.Decimation)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "input: %s %v Hz, decimation %d, path rate %v Hz\n", cfg.Input.Kind, sampleRate, cfg.Decimation, rate)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tCENTER\tBANDWIDTH\tRATE\tL/M\tTAPS")
	for _, m := range cfg.Modules {
		if _, ok := module.Lookup(m.Type); !ok {
			return fmt.Errorf("module %s: %w: %s", m.Name, module.ErrUnknownType, m.Type)
		}
		ref, err := vfo.ParseReference(m.VFO.Reference)
		if err != nil {
			return err
		}
		p := vfo.Params{
			Offset:    m.VFO.Offset,
			Bandwidth: m.VFO.Bandwidth,
			InRate:    rate,
			OutRate:   m.VFO.SampleRate,
			Reference: ref,
		}
		plan, err := p.Plan()
		if err != nil {
			return fmt.Errorf("module %s: %w", m.Name, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\t%d/%d\t%d\n",
			m.Name, m.Type, p.Center(), plan.Cutoff*2, plan.OutRate,
			plan.Interpolation, plan.Decimation, plan.Taps)
	}
	return w.Flush()
}

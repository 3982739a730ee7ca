package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpawatch/mpawatch/internal/catalog"
	"github.com/mpawatch/mpawatch/internal/config"
	"github.com/mpawatch/mpawatch/internal/gfw"
	"github.com/mpawatch/mpawatch/internal/logging"
	"github.com/mpawatch/mpawatch/internal/models"
	"github.com/mpawatch/mpawatch/internal/monitor"
)

// errAnalysisFailed makes the process exit non-zero after the error-shaped
// result has already been printed.
var errAnalysisFailed = errors.New("analysis failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mpawatch",
		Short: "Analyse fishing activity inside UK marine protected areas",
		Long: `mpawatch fetches monthly per-vessel fishing effort from the Global Fishing
Watch 4Wings API for one protected area and reports gear, vessel and
multi-year trend statistics. Configuration is read from the environment.`,
		SilenceUsage: true,
	}

	root.AddCommand(newAnalyzeCmd(), newMPAsCmd(), newTokenCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var (
		mpaName  string
		wdpaCode string
		start    string
		end      string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print the result as JSON",
		Example: `  mpawatch analyze --wdpa 555591636 --start 2020-01-01 --end 2022-06-01
  mpawatch analyze --mpa "Dogger Bank" --wdpa 555591636`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			from, to, err := analysisWindow(start, end, time.Now())
			if err != nil {
				return err
			}

			cat := catalog.Load(cfg.Catalog, logger)
			if mpaName == "" {
				mpa, ok := cat.Lookup(wdpaCode)
				if !ok {
					return fmt.Errorf("unknown WDPA code %s, pass --mpa to name the site", wdpaCode)
				}
				mpaName = mpa.SiteName
			}

			mon := monitor.FromConfig(cfg, cat, nil, logger)
			result := mon.Analyze(cmd.Context(), monitor.Request{
				MPAName:  mpaName,
				WDPACode: wdpaCode,
				Start:    from,
				End:      to,
			})

			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Status == models.AnalysisStatusError {
				return errAnalysisFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mpaName, "mpa", "", "site name (looked up from the catalog when omitted)")
	cmd.Flags().StringVar(&wdpaCode, "wdpa", "", "WDPA code of the protected area")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default 30 days before --end)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("wdpa")
	return cmd
}

func newMPAsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "mpas",
		Short: "List the protected areas in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			mpas := catalog.Load(cfg.Catalog, logger).MPAs()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), mpas)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WDPA CODE\tSITE NAME\tAREA (ha)")
			for _, m := range mpas {
				fmt.Fprintf(tw, "%s\t%s\t%.1f\n", m.WDPACode, m.SiteName, m.AreaHa)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	return cmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the subject and expiry of the configured GFW API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			info, err := gfw.InspectToken(cfg.GFW.APIToken)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "subject:    %s\n", valueOr(info.Subject, "-"))
			fmt.Fprintf(out, "issued at:  %s\n", formatTime(info.IssuedAt))
			fmt.Fprintf(out, "expires at: %s\n", formatTime(info.ExpiresAt))
			if info.Expired(time.Now()) {
				return errors.New("token has expired")
			}
			return nil
		},
	}
}

// setup loads configuration and builds a logger writing to w so stdout
// carries only command output.
func setup(w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.NewWithWriter(cfg.Logging, w)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func analysisWindow(start, end string, now time.Time) (time.Time, time.Time, error) {
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if end != "" {
		parsed, err := time.Parse(models.DateLayout, end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -30)
	if start != "" {
		parsed, err := time.Parse(models.DateLayout, start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		from = parsed
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", to.Format(models.DateLayout), from.Format(models.DateLayout))
	}
	return from, to, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

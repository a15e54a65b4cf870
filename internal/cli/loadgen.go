package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/berry-13/vicsam-group-sub002/internal/tools/common"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/loadgen"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/ui"
)

func newLoadgenCommand() *cobra.Command {
	var (
		cfg loadgen.Config
		ci  bool
	)
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive synthetic auth traffic at a running authd",
		RunE: func(cmd *cobra.Command, _ []string) error {
			work := func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("total=%d failures=%d elapsed=%s", res.TotalRequests, res.Failures, res.Elapsed.Round(time.Millisecond)),
				}
				for _, class := range slices.Sorted(maps.Keys(res.StatusClasses)) {
					details = append(details, fmt.Sprintf("%s=%d", class, res.StatusClasses[class]))
				}
				return details, nil
			}
			if ci {
				details, err := work(cmd.Context())
				common.PrintCIResult(err == nil, "loadgen", details, err)
				return err
			}
			_, err := ui.Run("loadgen "+cfg.Profile, work)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "authd base URL")
	f.StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: auth, read or mixed")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to send traffic")
	f.IntVar(&cfg.RPS, "rps", 20, "requests per second")
	f.IntVar(&cfg.Concurrency, "concurrency", 8, "maximum in-flight requests")
	f.IntVar(&cfg.Users, "users", 4, "number of synthetic accounts")
	f.Uint64Var(&cfg.Seed, "seed", 1, "operation mix seed")
	f.BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}

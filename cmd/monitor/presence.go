package monitor

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/nxauth/cmd/helpers"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/monitor"
	"github.com/stephnangue/nxauth/service/coral"
)

var (
	presenceUser     string
	presenceToken    string
	presenceProxyURL string
	presenceInterval int

	PresenceCmd = &cobra.Command{
		Use:           "presence",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Monitors friend presence until interrupted",
		Long: `
Usage: nxauth monitor presence [--user <id>] [--interval <seconds>]

  Polls the Coral friend list on an interval, persisting the latest
  snapshot and a change record for every presence transition. Runs in
  the foreground until interrupted; the final poll result is flushed
  before exit.

      $ nxauth monitor presence
      $ nxauth monitor presence --user 0123456789abcdef --interval 30
`,
		RunE: runPresence,
	}
)

func init() {
	PresenceCmd.Flags().StringVar(&presenceUser, "user", "", "The user ID to monitor (defaults to the selected account)")
	PresenceCmd.Flags().StringVar(&presenceToken, "token", "", "A raw session token to use instead of a stored account")
	PresenceCmd.Flags().StringVar(&presenceProxyURL, "proxy-url", "", "Route authentication through this API gateway")
	PresenceCmd.Flags().IntVar(&presenceInterval, "interval", 0, "Polling interval in seconds (defaults to the config value)")
}

func runPresence(cmd *cobra.Command, args []string) error {
	// The monitor context stays alive through shutdown so the final
	// flush can still run; only the wait below is signal-bound.
	ctx := cmd.Context()
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := helpers.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := helpers.ResolveService(rt, coral.ServiceName)
	if err != nil {
		return err
	}

	sessionToken, err := helpers.ResolveSessionToken(ctx, rt, presenceUser, presenceToken)
	if err != nil {
		return err
	}

	interval := time.Duration(presenceInterval) * time.Second
	if interval <= 0 {
		interval = time.Duration(rt.Config.MonitorIntervalSeconds) * time.Second
	}

	opts := credential.GetTokenOptions{ProxyURL: presenceProxyURL, RateLimit: true}
	updater := monitor.NewPresenceMonitor(rt.Manager, svc, sessionToken, opts, rt.Store, rt.Log.WithSubsystem("monitor"))

	manager := monitor.NewManager(rt.Log.WithSubsystem("monitor"))
	if err := manager.Start(ctx, sessionToken.Subject, updater, interval); err != nil {
		return err
	}

	fmt.Printf("Monitoring presence for %s, press Ctrl-C to stop\n", sessionToken.Subject)
	<-sigCtx.Done()
	stop()

	if err := manager.StopAll(); err != nil {
		return fmt.Errorf("monitor exited with error: %w", err)
	}
	return nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"poltrona/internal/bootstrap"
	"poltrona/internal/config"
	appErrors "poltrona/internal/errors"
	"poltrona/internal/logger"
	"poltrona/internal/scheduler"
	"poltrona/internal/services/chair"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg config.Config
	log *logrus.Logger
	rt  *bootstrap.Runtime
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "sweeper",
		Short:         "Run payment polling and session expiry sweeps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()
			a.cfg = config.Load()
			a.log = logger.New(a.cfg.LogLevel, a.cfg.Env)
			a.log.SetOutput(cmd.ErrOrStderr())

			if cmd.Name() != "seed-chair" {
				if err := a.cfg.Validate("sweeper"); err != nil {
					a.log.WithError(err).Error("refusing to run")
					return err
				}
			}

			rt, err := bootstrap.New(a.cfg, bootstrap.Options{UseBroker: true}, a.log)
			if err != nil {
				a.log.WithError(err).Error("startup failed")
				return err
			}
			a.rt = rt
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.rt != nil {
				return a.rt.Close()
			}
			return nil
		},
	}

	root.AddCommand(a.pollCmd(), a.expireCmd(), a.scheduleCmd(), a.seedChairCmd())
	return root
}

func (a *app) pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Re-check recent pending payments against the processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.rt.Registry.Reconciler.Sweep(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"success":  true,
				"checked":  summary.Checked,
				"approved": summary.Approved,
				"rejected": summary.Rejected,
			})
		},
	}
}

func (a *app) expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Close sessions whose end time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cleaned, err := a.rt.Registry.Sessions.ExpireDue(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"success": true, "cleaned": cleaned})
		},
	}
}

func (a *app) scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run both sweeps on their intervals until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s := scheduler.New(a.rt.Registry.Reconciler, a.rt.Registry.Sessions, a.cfg.Scheduler.PollInterval, a.cfg.Scheduler.ExpiryInterval, a.log)
			s.Start(ctx)
			<-ctx.Done()
			s.Wait()
			return nil
		},
	}
}

// seedChairCmd registers a chair, for first installs and local setups.
func (a *app) seedChairCmd() *cobra.Command {
	var in chair.CreateInput
	var price string

	cmd := &cobra.Command{
		Use:   "seed-chair",
		Short: "Register a chair if it does not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(price)
			if err != nil || !amount.IsPositive() {
				return fmt.Errorf("invalid --price %q", price)
			}
			in.Price = amount

			created, err := a.rt.Registry.Chairs.Create(cmd.Context(), chair.Actor{UserID: "cli"}, in)
			if errors.Is(err, appErrors.ErrChairExists) {
				a.log.WithField("chair_id", in.ChairID).Info("chair already registered")
				return nil
			}
			if err != nil {
				return a.fail(err)
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	cmd.Flags().StringVar(&in.ChairID, "id", "", "chair id")
	cmd.Flags().StringVar(&in.Address, "address", "", "controller address (host or host:port)")
	cmd.Flags().StringVar(&price, "price", "", "session price, e.g. 10.00")
	cmd.Flags().IntVar(&in.DurationSeconds, "duration", 900, "session length in seconds")
	cmd.Flags().StringVar(&in.Location, "location", "", "location label")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func (a *app) fail(err error) error {
	a.log.WithError(err).Error("sweep failed")
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

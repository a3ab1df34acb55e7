package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/diewo77/go-billing/internal/auth"
	"github.com/diewo77/go-billing/internal/config"
	"github.com/diewo77/go-billing/internal/db"
	"github.com/diewo77/go-billing/internal/logger"
	"github.com/diewo77/go-billing/internal/services"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app carries what every command needs once the root command has run.
type app struct {
	cfg    *config.Config
	conn   *gorm.DB
	engine *services.Engine
	log    zerolog.Logger
	actor  uint
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	a := &app{}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "billing",
		Short:         "Manage invoices, quotes and receipts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().Uint("actor", 0, "user id recorded on changes (default: ACTOR_ID)")

	root.AddCommand(
		newMigrateCmd(a),
		newCustomerCmd(a),
		newProjectCmd(a),
		newDocumentCmd(a),
		newQuoteCmd(a),
		newMilestoneCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.log = logger.WithComponent("cli")

	a.actor = cfg.App.ActorID
	if cmd.Flags().Changed("actor") {
		if a.actor, err = cmd.Flags().GetUint("actor"); err != nil {
			return err
		}
	}

	if a.conn, err = db.Open(cfg.Database); err != nil {
		return err
	}
	a.engine = services.NewEngine(a.conn,
		services.WithRenderer(services.LinkRenderer{BaseURL: cfg.App.PDFBaseURL}),
		services.WithMailer(outboxMailer{log: logger.WithComponent("mailer")}),
		services.WithLogger(logger.WithComponent("engine")),
	)
	return nil
}

// ctx returns a context carrying the acting user.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	return auth.WithUserID(cmd.Context(), a.actor)
}

// writeJSON writes v to stdout as indented JSON.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outboxMailer logs outgoing emails instead of delivering them.
type outboxMailer struct {
	log zerolog.Logger
}

func (m outboxMailer) Send(_ context.Context, msg services.Email) error {
	m.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("document", msg.DocumentNumber).
		Str("attachment", msg.AttachmentURL).
		Msg("email queued")
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/diewo77/go-billing/internal/db"
	"github.com/diewo77/go-billing/internal/models"
	"github.com/diewo77/go-billing/internal/services"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func parseKind(s string) (models.Kind, error) {
	k := models.Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown document kind %q (want invoice, quote or receipt)", s)
	}
	return k, nil
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}

// kindAndID parses the "<kind> <id>" arguments shared by document commands.
func kindAndID(args []string) (models.Kind, uint, error) {
	kind, err := parseKind(args[0])
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(args[1])
	return kind, id, err
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := db.Setup(a.conn, a.cfg.Database, a.cfg.App.Migrations); err != nil {
				return err
			}
			a.log.Info().Bool("sql", a.cfg.App.Migrations).Msg("schema up to date")
			return nil
		},
	}
}

func newCustomerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "customer", Short: "Manage customers"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Register a potential customer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in services.CustomerInput
			f := cmd.Flags()
			in.Name, _ = f.GetString("name")
			in.CompanyName, _ = f.GetString("company")
			in.Email, _ = f.GetString("email")
			in.Telephone1, _ = f.GetString("phone")
			in.Telephone2, _ = f.GetString("phone2")
			in.Address, _ = f.GetString("address")
			in.ClientRegNo, _ = f.GetString("reg-no")
			in.ClientTaxID, _ = f.GetString("tax-id")
			in.Notes, _ = f.GetString("notes")
			c, err := a.engine.CreateCustomer(a.ctx(cmd), in)
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		},
	}
	create.Flags().String("name", "", "contact name")
	create.Flags().String("company", "", "company name")
	create.Flags().String("email", "", "email address")
	create.Flags().String("phone", "", "primary telephone (unique)")
	create.Flags().String("phone2", "", "secondary telephone")
	create.Flags().String("address", "", "postal address")
	create.Flags().String("reg-no", "", "company registration number")
	create.Flags().String("tax-id", "", "tax identification number")
	create.Flags().String("notes", "", "free-form notes")

	setActive := func(use string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: use + " a customer",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				c, err := a.engine.SetCustomerActive(a.ctx(cmd), id, active)
				if err != nil {
					return err
				}
				return writeJSON(cmd, c)
			},
		}
	}

	find := &cobra.Command{
		Use:   "find <phone>",
		Short: "Look a customer up by primary telephone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.engine.FindCustomerByPhone(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		},
	}

	cmd.AddCommand(create, setActive("activate", true), setActive("deactivate", false), find)
	return cmd
}

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects and milestones"}

	create := &cobra.Command{
		Use:   "create <customer-id> <title>",
		Short: "Open a project for an active customer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cid, err := parseID(args[0])
			if err != nil {
				return err
			}
			budget, err := decimalFlag(cmd, "budget")
			if err != nil {
				return err
			}
			p, err := a.engine.CreateProject(a.ctx(cmd), services.ProjectInput{
				CustomerID: cid, Title: args[1], TotalBudget: budget,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, p)
		},
	}
	create.Flags().String("budget", "", "total budget")

	milestone := &cobra.Command{
		Use:   "add-milestone <project-id> <advance|progress|final>",
		Short: "Append a planned milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parseID(args[0])
			if err != nil {
				return err
			}
			expected, err := decimalFlag(cmd, "expected")
			if err != nil {
				return err
			}
			label, _ := cmd.Flags().GetString("label")
			m, err := a.engine.AddMilestone(a.ctx(cmd), pid, services.MilestoneInput{
				Type: models.MilestoneType(args[1]), Label: label, ExpectedAmount: expected,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, m)
		},
	}
	milestone.Flags().String("expected", "", "expected amount")
	milestone.Flags().String("label", "", "milestone label")

	cmd.AddCommand(create, milestone)
	return cmd
}

func newDocumentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "document", Short: "Create and move invoices, quotes and receipts"}

	create := &cobra.Command{
		Use:   "create <kind> <input.json>",
		Short: "Create a draft document from a JSON payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var in services.DocumentInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("decode %s: %w", args[1], err)
			}
			doc, err := a.engine.CreateDocument(a.ctx(cmd), kind, in)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}

	update := &cobra.Command{
		Use:   "update <kind> <id> <patch.json>",
		Short: "Change a draft document from a JSON patch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args[:2])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			var patch services.DocumentPatch
			if err := json.Unmarshal(raw, &patch); err != nil {
				return fmt.Errorf("decode %s: %w", args[2], err)
			}
			doc, err := a.engine.UpdateDocument(a.ctx(cmd), kind, id, patch)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}

	show := &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args)
			if err != nil {
				return err
			}
			doc, err := a.engine.GetDocument(a.ctx(cmd), kind, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}

	issue := &cobra.Command{
		Use:   "issue <kind> <id>",
		Short: "Finalize a draft document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args)
			if err != nil {
				return err
			}
			doc, err := a.engine.IssueDocument(a.ctx(cmd), kind, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <kind> <id>",
		Short: "Cancel an issued document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			doc, err := a.engine.CancelDocument(a.ctx(cmd), kind, id, reason)
			if err != nil {
				return err
			}
			return writeJSON(cmd, doc)
		},
	}
	cancel.Flags().String("reason", "", "cancellation reason (required)")

	del := &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a draft document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args)
			if err != nil {
				return err
			}
			if err := a.engine.DeleteDocument(a.ctx(cmd), kind, id); err != nil {
				return err
			}
			a.log.Info().Str("kind", string(kind)).Uint("id", id).Msg("document deleted")
			return nil
		},
	}

	pdf := &cobra.Command{
		Use:   "pdf <kind> <id>",
		Short: "Render the document artifact and print its URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args)
			if err != nil {
				return err
			}
			url, err := a.engine.GeneratePDF(a.ctx(cmd), kind, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	send := &cobra.Command{
		Use:   "send <kind> <id> <email>",
		Short: "Email an issued document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := kindAndID(args[:2])
			if err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			message, _ := cmd.Flags().GetString("message")
			return a.engine.SendDocument(a.ctx(cmd), kind, id, services.EmailRequest{
				To: args[2], Subject: subject, Message: message,
			})
		},
	}
	send.Flags().String("subject", "", "email subject")
	send.Flags().String("message", "", "email body")

	cmd.AddCommand(create, update, show, issue, cancel, del, pdf, send)
	return cmd
}

func newQuoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "quote", Short: "Quote operations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "convert <id>",
		Short: "Convert a quote into a draft invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inv, err := a.engine.ConvertQuoteToInvoice(a.ctx(cmd), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd, inv)
		},
	})
	return cmd
}

func newMilestoneCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "milestone", Short: "Milestone operations"}
	recompute := &cobra.Command{
		Use:   "recompute <id>",
		Short: "Recompute a milestone's status from its issued receipts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var paymentDate *time.Time
			if s, _ := cmd.Flags().GetString("payment-date"); s != "" {
				d, err := time.Parse("2006-01-02", s)
				if err != nil {
					return fmt.Errorf("--payment-date: %w", err)
				}
				paymentDate = &d
			}
			m, err := a.engine.RecomputeMilestone(a.ctx(cmd), id, paymentDate)
			if err != nil {
				return err
			}
			return writeJSON(cmd, m)
		},
	}
	recompute.Flags().String("payment-date", "", "payment date (YYYY-MM-DD), used if none is stored")
	cmd.AddCommand(recompute)
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/processor"
	"github.com/camuig/rf-history/internal/report"
	"github.com/camuig/rf-history/internal/scheduler"
	"github.com/camuig/rf-history/internal/statement"
	"github.com/camuig/rf-history/internal/storage"
	"github.com/camuig/rf-history/internal/telegram"
)

const commandTimeout = 2 * time.Minute

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		window  string
		asJSON  bool
		topGrid int
	)
	cmd := &cobra.Command{
		Use:   "analyze <statement.htm>",
		Short: "Analyze a statement file without touching the database",
		Example: `  gridstat analyze statement.htm
  gridstat analyze statement.htm --window monthprev --top 5
  gridstat analyze statement.htm --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := analyzer.ParseWindowKind(window)
			if err != nil {
				return err
			}
			classifier, err := analyzer.NewPatternClassifier(a.cfg.Statements.DepositPattern)
			if err != nil {
				return fmt.Errorf("deposit pattern: %w", err)
			}
			engine, err := analyzer.NewEngine(a.cfg.GridParams())
			if err != nil {
				return err
			}

			st, err := statement.ReadFile(args[0])
			if err != nil {
				return err
			}
			orders, err := st.Orders(analyzer.NormalizeOptions{
				Classifier: classifier,
				Location:   a.cfg.Location(),
			}, a.cfg.Grid.Markers)
			if err != nil {
				return err
			}
			res, err := report.Analyze(engine, orders, kind)
			if err != nil {
				return err
			}
			res.FTPUserID = st.Header.Account
			for _, w := range res.Warnings {
				a.log.Warn("degenerate grid", "warning", w.String())
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "Account %s (%s)\n\n", st.Header.Account, st.Header.Template)
			printSummary(out, res.Summary, a.cfg.Grid.MaxOrders)
			fmt.Fprintln(out)
			printGrids(out, report.TopGrids(res.Grids, topGrid))
			return nil
		},
	}
	cmd.Flags().StringVar(&window, "window", "summary", "summary, week, weekprev, month or monthprev")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().IntVar(&topGrid, "top", 10, "number of grids to list, 0 for all")
	return cmd
}

func printSummary(w io.Writer, s analyzer.Summary, maxOrders int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	row := func(name string, v any) { fmt.Fprintf(tw, "%s\t%v\n", name, v) }
	if s.Start.IsZero() {
		row("Window", s.Window.Kind)
	} else {
		row("Window", fmt.Sprintf("%s %s - %s", s.Window.Kind, s.Start.Format("2006-01-02"), s.Finish.Format("2006-01-02")))
	}
	if s.NoOrders {
		row("Result", "no orders in window")
		return
	}
	row("Trading / calendar days", fmt.Sprintf("%d / %d", s.TradingDays, s.CalendarDays))
	row("Deposits / withdrawals / misc", fmt.Sprintf("%.2f / %.2f / %.2f", s.Deposits, s.Withdrawals, s.Misc))
	row("Profit", fmt.Sprintf("%.2f", s.Profit))
	row("Balance", s.Balance)
	row("Own funds", fmt.Sprintf("%.2f", s.OwnFunds))
	row("Monthly return", s.MonthlyReturn)
	row("ROI", s.ROI)
	row("Orders / wins", fmt.Sprintf("%d / %d", s.OrderCount, s.WinCount))
	row("Win rate", s.WinRate)
	row("Grids", s.GridCount)
	if s.NoGrids {
		return
	}
	row("Orders per grid avg / max", fmt.Sprintf("%s / %d", s.AvgGridOrderCount, s.MaxGridOrderCount))
	row("Grid duration min / avg / max", fmt.Sprintf("%s / %s / %s", s.MinGridDuration, s.AvgGridDuration, s.MaxGridDuration))
	row("Lot per 1000 min / avg / max", fmt.Sprintf("%s / %s / %s", s.MinLot1000, s.AvgLot1000, s.MaxLot1000))
	row("Drawdown avg / max", fmt.Sprintf("%s / %s", s.AvgDrawdown, s.MaxDrawdown))
	row("Drawdown ratio avg / max", fmt.Sprintf("%s / %s", s.AvgDrawdownRatio, s.MaxDrawdownRatio))
	row(fmt.Sprintf("Drawdown at %d orders avg / max", maxOrders), fmt.Sprintf("%s / %s", s.AvgSimulatedDrawdown, s.MaxSimulatedDrawdown))
	row(fmt.Sprintf("Ratio at %d orders avg / max", maxOrders), fmt.Sprintf("%s / %s", s.AvgSimulatedDrawdownRatio, s.MaxSimulatedDrawdownRatio))
}

func printGrids(w io.Writer, grids []analyzer.Grid) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "GRID\tOPENED\tSIDE\tORDERS\tPROFIT\tDRAWDOWN\tRATIO\tSIMULATED")
	for _, g := range grids {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\t%.2f\t%s\t%s\n",
			g.ID, g.OpenTime.Format("2006-01-02 15:04"), g.Side, g.OrderCount,
			g.Profit, g.Drawdown, g.DrawdownRatio, g.SimulatedDrawdownRatio)
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <ftp-user> <statement.htm>",
		Short: "Store new orders from a statement for an FTP user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository()
			if err != nil {
				return err
			}
			proc, err := processor.NewProcessor(repo, a.metrics, a.cfg, a.log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			res, err := proc.Process(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s: %d rows, %d new\n", res.Header.Account, res.Total, res.New)
			return nil
		},
	}
}

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage linked trading accounts",
	}

	var (
		acc      storage.Account
		inactive bool
	)
	add := &cobra.Command{
		Use:     "add",
		Short:   "Link a trading account to an FTP user and a Telegram user",
		Example: `  gridstat account add --ftp-user ftp1 --account 12345 --telegram-id 4242`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if acc.FTPUserID == "" || acc.AccountNumber == "" {
				return fmt.Errorf("--ftp-user and --account are required")
			}
			repo, err := a.repository()
			if err != nil {
				return err
			}
			if existing, err := repo.AccountByFTPUser(acc.FTPUserID); err == nil {
				acc.ID = existing.ID
				acc.CreatedAt = existing.CreatedAt
				acc.LastCheckAt = existing.LastCheckAt
			}
			acc.Active = !inactive
			if err := repo.SaveAccount(&acc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s linked to ftp user %s\n", acc.AccountNumber, acc.FTPUserID)
			return nil
		},
	}
	add.Flags().StringVar(&acc.FTPUserID, "ftp-user", "", "FTP user id (statement directory name)")
	add.Flags().StringVar(&acc.AccountNumber, "account", "", "trading account number")
	add.Flags().StringVar(&acc.Name, "name", "", "account owner")
	add.Flags().Int64Var(&acc.TelegramUserID, "telegram-id", 0, "Telegram user id to notify")
	add.Flags().BoolVar(&inactive, "inactive", false, "exclude the account from FTP scans")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts included in FTP scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository()
			if err != nil {
				return err
			}
			accounts, err := repo.ActiveAccounts()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "FTP USER\tACCOUNT\tTELEGRAM\tLAST CHECK")
			for _, acc := range accounts {
				last := "-"
				if acc.LastCheckAt != nil {
					last = acc.LastCheckAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", acc.FTPUserID, acc.AccountNumber, acc.TelegramUserID, last)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one FTP scan cycle over active accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository()
			if err != nil {
				return err
			}
			proc, err := processor.NewProcessor(repo, a.metrics, a.cfg, a.log)
			if err != nil {
				return err
			}
			scanner := scheduler.NewScanner(proc, repo, telegram.NewNotifier(nil, a.log), a.metrics, a.cfg, a.log)

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			imported, err := scanner.Scan(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d statement(s) imported\n", imported)
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/poll"
	"jobfeed-engine/internal/reconcile"
	"jobfeed-engine/internal/secrets"
	"jobfeed-engine/internal/store"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync one source, or every source",
	Long: `Fetch jobs from sources and reconcile them with the store.

Examples:
  jobfeed sync --source 12
  jobfeed sync --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, _ := cmd.Flags().GetInt64("source")
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")
		if (sourceID > 0) == all {
			return errors.New("exactly one of --source or --all is required")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if sourceID > 0 {
			res := a.eng.SyncSource(cmd.Context(), sourceID)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			if !res.Success {
				return fmt.Errorf("source %d: %s", sourceID, res.Error)
			}
			printResult(cmd, res)
			return nil
		}

		sum, err := poll.PollOnce(cmd.Context(), a.db, a.eng, a.config(), time.Now())
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), sum)
		}
		printStatus(cmd.OutOrStdout(), "sources", "%d (%d failed)", sum.Sources, sum.Failed)
		printStatus(cmd.OutOrStdout(), "added", "%d", sum.Added)
		printStatus(cmd.OutOrStdout(), "updated", "%d", sum.Updated)
		printStatus(cmd.OutOrStdout(), "removed", "%d", sum.Removed)
		printStatus(cmd.OutOrStdout(), "reactivated", "%d", sum.Reactivated)
		if sum.Failed > 0 {
			printWarning("%d source(s) failed; see the log above", sum.Failed)
		}
		return nil
	},
}

func printResult(cmd *cobra.Command, res reconcile.Result) {
	out := cmd.OutOrStdout()
	printSuccess("source %d synced (run %s)", res.SourceID, res.RunID)
	printStatus(out, "added", "%d", res.Added)
	printStatus(out, "updated", "%d", res.Updated)
	printStatus(out, "unchanged", "%d", res.Unchanged)
	printStatus(out, "removed", "%d", res.Removed)
	printStatus(out, "reactivated", "%d", res.Reactivated)
	printStatus(out, "active", "%d", res.TotalActive)
}

func init() {
	syncCmd.Flags().Int64("source", 0, "source id to sync")
	syncCmd.Flags().Bool("all", false, "sync every source")
	syncCmd.Flags().Bool("json", false, "print the result as JSON")
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <type> <identifier>",
	Short: "Check that a source configuration can be fetched",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		vr, err := validateSource(cmd, a, domain.SourceConfig{Type: args[0], Identifier: args[1]})
		if err != nil {
			return err
		}
		if !vr.Valid {
			return errors.New(vr.Error)
		}
		printSuccess("valid: %d job(s) listed", vr.JobCount)
		return nil
	},
}

func validateSource(cmd *cobra.Command, a *app, cfg domain.SourceConfig) (ats.ValidationResult, error) {
	c, err := a.eng.Registry().Resolve(strings.ToLower(cfg.Type))
	if err != nil {
		return ats.ValidationResult{}, err
	}
	return c.ValidateConfig(cmd.Context(), cfg), nil
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage import sources",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <type> <identifier>",
	Short: "Add a source after validating it",
	Long: `Add a source for an owner. The source is fetched once first; use
--skip-validation to store it without a network check.

Examples:
  jobfeed sources add greenhouse acme --owner 1
  jobfeed sources add workday https://acme.wd5.myworkdayjobs.com/en-US/Careers --owner 1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetInt64("owner")
		url, _ := cmd.Flags().GetString("url")
		skip, _ := cmd.Flags().GetBool("skip-validation")
		if owner <= 0 {
			return errors.New("--owner is required")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := domain.SourceConfig{
			OwnerID:    owner,
			Type:       strings.ToLower(strings.TrimSpace(args[0])),
			Identifier: strings.TrimSpace(args[1]),
			URL:        strings.TrimSpace(url),
		}
		if !a.eng.Registry().IsSupported(cfg.Type) {
			return fmt.Errorf("unsupported source type %q (valid types: %s)", cfg.Type, strings.Join(a.eng.Registry().Types(), ", "))
		}
		if !skip {
			vr, err := validateSource(cmd, a, cfg)
			if err != nil {
				return err
			}
			if !vr.Valid {
				return errors.New(vr.Error)
			}
			printStatus(cmd.ErrOrStderr(), "jobs listed", "%d", vr.JobCount)
		}

		src, err := store.CreateSource(cmd.Context(), a.db.Pool, cfg, time.Now())
		if err != nil {
			return err
		}
		printSuccess("added source %d (%s %s)", src.ID, src.Type, src.Identifier)
		fmt.Fprintln(cmd.OutOrStdout(), src.ID)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetInt64("owner")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sources, err := store.ListSources(cmd.Context(), a.db.Pool, owner)
		if err != nil {
			return err
		}
		if asJSON {
			if sources == nil {
				sources = []domain.ImportSource{}
			}
			return writeJSON(cmd.OutOrStdout(), sources)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tOWNER\tTYPE\tIDENTIFIER\tSTATUS\tLAST FETCH")
		for _, s := range sources {
			last := "-"
			if s.LastFetchedAt != nil {
				last = s.LastFetchedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", s.ID, s.OwnerID, s.Type, s.Identifier, s.FetchStatus, last)
		}
		return tw.Flush()
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source and all of its jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid source id %q", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := store.DeleteSource(cmd.Context(), a.db.Pool, id); err != nil {
			return err
		}
		printSuccess("deleted source %d", id)
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().Int64("owner", 0, "owner id")
	sourcesAddCmd.Flags().String("url", "", "public careers URL to store with the source")
	sourcesAddCmd.Flags().Bool("skip-validation", false, "store without fetching first")
	sourcesListCmd.Flags().Int64("owner", 0, "only this owner's sources")
	sourcesListCmd.Flags().Bool("json", false, "print as JSON")

	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List an owner's active jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetInt64("owner")
		asJSON, _ := cmd.Flags().GetBool("json")
		if owner <= 0 {
			return errors.New("--owner is required")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		jobs, err := store.GetActiveJobs(cmd.Context(), a.db.Pool, owner)
		if err != nil {
			return err
		}
		if asJSON {
			if jobs == nil {
				jobs = []domain.Job{}
			}
			return writeJSON(cmd.OutOrStdout(), jobs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSOURCE\tTITLE\tLOCATION\tWORKPLACE\tURL")
		for _, j := range jobs {
			wp := string(j.WorkplaceType)
			if wp == "" {
				wp = "-"
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", j.ID, j.SourceID, j.Title, j.Location, wp, j.URL)
		}
		return tw.Flush()
	},
}

func init() {
	jobsCmd.Flags().Int64("owner", 0, "owner id")
	jobsCmd.Flags().Bool("json", false, "print as JSON")
}

// --- secrets ---

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage per-source API tokens in the OS keychain",
}

var secretsSetTokenCmd = &cobra.Command{
	Use:   "set-token <type> <identifier> <token>",
	Short: "Store an API token for a source",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secrets.SetSourceToken(args[0], args[1], args[2]); err != nil {
			return err
		}
		printSuccess("token stored for %s", secrets.SourceTokenAccount(args[0], args[1]))
		return nil
	},
}

var secretsDeleteTokenCmd = &cobra.Command{
	Use:   "delete-token <type> <identifier>",
	Short: "Remove a stored API token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secrets.DeleteSourceToken(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("token removed for %s", secrets.SourceTokenAccount(args[0], args[1]))
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetTokenCmd)
	secretsCmd.AddCommand(secretsDeleteTokenCmd)
}

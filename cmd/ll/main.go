package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loopline/internal/app"
	"loopline/internal/config"
	"loopline/internal/domain"
	"loopline/internal/loop"
	"loopline/internal/server"
	looplinesdk "loopline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Loopline CLI",
	Long: `Loopline runs a closed work-coordination loop: proposals pass a cap
gate and an auto-approval policy, approved proposals become missions of
ordered steps, step outcomes land in the event log, and trigger rules
turn outcomes into new proposals.

State is in-memory only. 'll serve' hosts the loop behind an HTTP API;
'll submit', 'll approve', 'll status' and 'll events' talk to a running
server; 'll loop' drives a self-contained multi-day simulation.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LOOPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "base URL of a running ll serve")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loopCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
}

func loadConfig() (*config.Config, error) {
	return config.LoadOptional(config.Path(viper.GetString("workspace")))
}

func client() *looplinesdk.Client {
	return looplinesdk.New(viper.GetString("server"))
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var sweepInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := app.New(cfg)
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath})
			if err != nil {
				return err
			}
			// Stale-step watchdog: fail steps with no progress, then
			// conclude their missions.
			go func() {
				t := time.NewTicker(sweepInterval)
				defer t.Stop()
				for {
					select {
					case <-cmd.Context().Done():
						return
					case <-t.C:
						for _, st := range a.Engine.SweepStale(time.Now(), 0) {
							_ = a.Engine.RecheckMission(st.MissionID)
						}
					}
				}
			}()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Loopline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Minute, "stale-step sweep interval")
	return cmd
}

func loopCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Run a self-contained multi-day simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := app.New(cfg)
			runner := &loop.Runner{Engine: a.Engine, Out: os.Stdout}
			snap, err := runner.Run(cmd.Context(), days)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(snap)
			}
			printSnapshot(cfg.Company.Name, snap)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 3, "number of simulated days")
	return cmd
}

func submitCmd() *cobra.Command {
	var title, proposer string
	var kinds []string
	var confidence float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a proposal to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			if len(kinds) == 0 {
				return fmt.Errorf("at least one --kind is required")
			}
			pctx := map[string]any{}
			if confidence > 0 {
				pctx["confidence"] = confidence
			}
			p, err := client().Submit(cmd.Context(), title, proposer, kinds, pctx)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "proposal title")
	cmd.Flags().StringVar(&proposer, "proposer", "", "proposer identifier")
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "step kind (repeatable, ordered)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "proposal confidence (0..1)")
	return cmd
}

func approveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <proposal-id>",
		Short: "Approve an awaiting proposal on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client().Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the loop snapshot of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().Status(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(st)
			}
			fmt.Printf("Company: %s (%s)\n", st.CompanyName, st.CompanyID)
			printCounts("Proposals", st.ProposalsByStatus)
			printCounts("Missions", st.MissionsByStatus)
			printCounts("Steps", st.StepsByStatus)
			printCounts("Stats", st.Stats)
			return nil
		},
	}
	return cmd
}

func eventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail recent events from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := client().Events(cmd.Context(), n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Source", "Type", "Created", "Processed"})
			for _, e := range events {
				tw.AppendRow(table.Row{e.ID, e.Source, e.Type, e.CreatedAt, e.Processed})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfgCmd.AddCommand(configShowCmd())
	cfgCmd.AddCommand(configInitCmd())
	return cfgCmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default loopline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}

// --- helpers ---

func printSnapshot(companyName string, snap domain.Snapshot) {
	fmt.Printf("Company: %s\n", companyName)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Counter", "Value"})
	tw.AppendRow(table.Row{"proposals created", snap.Stats.ProposalsCreated})
	tw.AppendRow(table.Row{"proposals approved", snap.Stats.ProposalsApproved})
	tw.AppendRow(table.Row{"proposals rejected", snap.Stats.ProposalsRejected})
	tw.AppendRow(table.Row{"missions completed", snap.Stats.MissionsCompleted})
	tw.AppendRow(table.Row{"events emitted", snap.Stats.EventsEmitted})
	tw.AppendRow(table.Row{"triggers fired", snap.Stats.TriggersFired})
	tw.Render()
	printCounts("Proposals", snap.ProposalsByStatus)
	printCounts("Missions", snap.MissionsByStatus)
	printCounts("Steps", snap.StepsByStatus)
	printCounts("Steps by kind", snap.StepsByKind)
}

func printCounts(label string, counts map[string]int) {
	fmt.Printf("%s:\n", label)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %d\n", k, counts[k])
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

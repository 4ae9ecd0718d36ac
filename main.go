package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"recast/pkg/analyzer"
	"recast/pkg/api"
	"recast/pkg/committer"
	"recast/pkg/config"
	"recast/pkg/exec"
	"recast/pkg/gate"
	"recast/pkg/generator"
	"recast/pkg/jobfile"
	"recast/pkg/llm"
	"recast/pkg/llm/factory"
	"recast/pkg/logx"
	"recast/pkg/loop"
	"recast/pkg/manager"
	"recast/pkg/metrics"
	"recast/pkg/persistence"
	"recast/pkg/reflector"
	"recast/pkg/state"
	"recast/pkg/templates"
	"recast/pkg/transform"
	"recast/pkg/validator"
	"recast/pkg/workspace"
)

var rootFlags struct {
	config string
	db     string
}

var rootCmd = &cobra.Command{
	Use:   "recast",
	Short: "Autonomous code refactoring with validation and self-correction",
	Long: `Recast rewrites Python files toward a stated goal, validates every
candidate with ruff, pyright and pytest, reflects on failures, and retries
until the checks pass or the iteration budget runs out. Progress is
checkpointed to sqlite after every state transition, so interrupted
workflows resume where they stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&rootFlags.db, "db", "", "sqlite database path (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(rewindCmd)
	rootCmd.AddCommand(secretsCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return config.Config{}, err
	}
	if rootFlags.db != "" {
		cfg.DatabasePath = rootFlags.db
	}
	if cfg.LogFile != "" {
		logx.SetFileOutput(cfg.LogFile)
	}
	return cfg, nil
}

// loadSecrets opens the encrypted secrets file under the home directory when
// one exists; otherwise API keys come from the environment.
func loadSecrets() *config.Secrets {
	home, err := os.UserHomeDir()
	if err != nil || !config.SecretsFileExists(home) {
		return config.NewSecrets()
	}

	password := os.Getenv("RECAST_SECRETS_PASSWORD")
	if password == "" {
		pw, perr := promptPassword("secrets password: ")
		if perr != nil {
			logx.Warnf("could not read secrets password: %v; using environment keys", perr)
			return config.NewSecrets()
		}
		password = pw
	}

	secrets, err := config.LoadSecrets(home, password)
	if err != nil {
		logx.Warnf("could not decrypt secrets file: %v; using environment keys", err)
		return config.NewSecrets()
	}
	return secrets
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// machineLabels defers metrics-label resolution until the machine exists.
// The LLM client is a machine dependency but labels come from the machine,
// so the pointer is filled in right after construction.
type machineLabels struct {
	m *loop.Machine
}

func (l *machineLabels) WorkflowID() string {
	if l.m == nil {
		return ""
	}
	return l.m.WorkflowID()
}

func (l *machineLabels) Phase() string {
	if l.m == nil {
		return ""
	}
	return l.m.Phase()
}

// wiring holds the per-process singletons behind a manager.
type wiring struct {
	cfg      config.Config
	store    *persistence.Store
	reviewer *gate.StoreReviewer
	mgr      *manager.Manager
}

func (w *wiring) Close() {
	if w.store != nil {
		_ = w.store.Close()
	}
}

// buildManager wires the full dependency graph: store, metrics, templates,
// rate limiter, reviewer, and the machine builders the manager invokes per
// workflow. commitDir empty disables writing approved changes to disk.
func buildManager(ctx context.Context, cfg config.Config, secrets *config.Secrets, commitDir string, backup bool) (*wiring, error) {
	store, err := persistence.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	recorder := metrics.NewRecorder()

	var limiter *llm.TokenBucketLimiter
	if cfg.Provider != config.ProviderOllama {
		limiter = factory.DefaultLimiter(cfg.Provider)
		limiter.Start(ctx)
	}

	var reviewer gate.Reviewer
	var storeReviewer *gate.StoreReviewer
	switch cfg.GateMode {
	case config.GateConsole:
		reviewer = gate.NewConsoleReviewer(renderer)
	case config.GateAPI:
		storeReviewer = gate.NewStoreReviewer()
		reviewer = storeReviewer
	}

	buildDeps := func(labels *machineLabels) (loop.Deps, error) {
		client, err := factory.New(cfg, secrets, factory.Options{
			Recorder: recorder,
			Labels:   labels,
			Logger:   logx.NewLogger("llm"),
			Limiter:  limiter,
		})
		if err != nil {
			return loop.Deps{}, err
		}
		deps := loop.Deps{
			Analyzer:    analyzer.New(client, renderer),
			Generator:   generator.New(client, transform.NewRegistry(), renderer),
			Validator:   validator.New(exec.NewLocalExec(), cfg.Validation),
			Reflector:   reflector.New(client, renderer),
			Reviewer:    reviewer,
			Checkpoints: store,
			Progress:    recorder,
		}
		if commitDir != "" {
			deps.Committer = committer.New(commitDir, backup)
		}
		return deps, nil
	}

	mgr := manager.New(manager.Options{
		Config:   cfg,
		Store:    store,
		Reviewer: storeReviewer,
		Build: func(ws *state.WorkflowState) (*loop.Machine, error) {
			labels := &machineLabels{}
			deps, err := buildDeps(labels)
			if err != nil {
				return nil, err
			}
			m := loop.NewMachine(ws, deps)
			labels.m = m
			return m, nil
		},
		Rebuild: func(snapshot []byte, step int) (*loop.Machine, error) {
			labels := &machineLabels{}
			deps, err := buildDeps(labels)
			if err != nil {
				return nil, err
			}
			m, err := loop.Resume(snapshot, step, deps)
			if err != nil {
				return nil, err
			}
			labels.m = m
			return m, nil
		},
	})

	return &wiring{cfg: cfg, store: store, reviewer: storeReviewer, mgr: mgr}, nil
}

// run

var runFlags struct {
	job           string
	workspace     string
	paths         []string
	goal          string
	maxIterations int
	gate          string
	model         string
	provider      string
	noBackup      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a refactoring workflow to completion",
	Long: `Run executes one workflow in the foreground. Input comes from a job
file (--job), a workspace directory (--workspace), or explicit file paths
(--path, repeatable). Workspace and path runs need --goal.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.job, "job", "f", "", "YAML job file")
	runCmd.Flags().StringVarP(&runFlags.workspace, "workspace", "w", "", "directory to collect Python files from")
	runCmd.Flags().StringArrayVarP(&runFlags.paths, "path", "p", nil, "explicit file to refactor (repeatable)")
	runCmd.Flags().StringVarP(&runFlags.goal, "goal", "g", "", "refactoring goal")
	runCmd.Flags().IntVar(&runFlags.maxIterations, "max-iterations", 0, "per-file retry ceiling (overrides config)")
	runCmd.Flags().StringVar(&runFlags.gate, "gate", "", "human gate mode: auto or console")
	runCmd.Flags().StringVar(&runFlags.model, "model", "", "model identifier (overrides config)")
	runCmd.Flags().StringVar(&runFlags.provider, "provider", "", "LLM provider (overrides config)")
	runCmd.Flags().BoolVar(&runFlags.noBackup, "no-backup", false, "skip .bak files when committing changes")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		goal      string
		inputs    []state.FileInput
		commitDir string
	)
	switch {
	case runFlags.job != "":
		job, jerr := jobfile.Load(runFlags.job)
		if jerr != nil {
			return jerr
		}
		cfg = job.Apply(cfg)
		goal = job.Goal
		if inputs, err = job.Inputs(); err != nil {
			return err
		}
		switch {
		case job.Workspace != "":
			commitDir = job.Workspace
		case len(job.Paths) > 0:
			commitDir = "."
		}
	case runFlags.workspace != "":
		goal = runFlags.goal
		if inputs, err = workspace.Collect(runFlags.workspace); err != nil {
			return err
		}
		commitDir = runFlags.workspace
	case len(runFlags.paths) > 0:
		goal = runFlags.goal
		if inputs, err = workspace.Read(runFlags.paths); err != nil {
			return err
		}
		commitDir = "."
	default:
		return errors.New("one of --job, --workspace or --path is required")
	}

	if runFlags.gate != "" {
		cfg.GateMode = runFlags.gate
	}
	if runFlags.model != "" {
		cfg.Model = runFlags.model
	}
	if runFlags.provider != "" {
		cfg.Provider = runFlags.provider
	}
	if runFlags.maxIterations > 0 {
		cfg.MaxIterations = runFlags.maxIterations
	}
	if cfg.GateMode == config.GateAPI {
		return errors.New("api gate mode needs the server: start `recast serve` and submit over HTTP")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := buildManager(ctx, cfg, loadSecrets(), commitDir, !runFlags.noBackup)
	if err != nil {
		return err
	}
	defer w.Close()

	id, err := w.mgr.Start(goal, inputs, cfg.MaxIterations)
	if err != nil {
		return err
	}
	fmt.Printf("workflow %s: %d files queued\n", id, len(inputs))

	go func() {
		<-ctx.Done()
		_ = w.mgr.Cancel(id)
	}()

	if err := w.mgr.Wait(id); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	summary, err := w.mgr.Status(id)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, summary)

	if summary.Cancelled {
		return errors.New("workflow cancelled")
	}
	if summary.TerminalError != "" {
		return errors.New(summary.TerminalError)
	}
	if summary.FilesFailed > 0 {
		return fmt.Errorf("%d of %d files escalated", summary.FilesFailed, summary.FilesTotal)
	}
	return nil
}

func printSummary(out io.Writer, s state.Summary) {
	fmt.Fprintf(out, "\nworkflow %s finished: %s\n", s.ID, s.Status)
	fmt.Fprintf(out, "files: %d completed, %d failed, %d total\n", s.FilesCompleted, s.FilesFailed, s.FilesTotal)

	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(out, "  %-12s %s\n", s.Files[p], p)
	}
	if s.TerminalError != "" {
		fmt.Fprintf(out, "terminal error: %s\n", s.TerminalError)
	}
}

// serve

var serveFlags struct {
	addr      string
	commitDir string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and run workflows in the background",
	Long: `Serve exposes the workflow API: submit refactoring jobs, poll status,
deliver review decisions in api gate mode, and inspect checkpoints. Metrics
are published on /metrics in Prometheus format.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveFlags.commitDir, "commit-dir", "", "directory approved changes are written to (default: none)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.ListenAddr = serveFlags.addr
	}
	if cfg.GateMode == config.GateConsole {
		return errors.New("console gate cannot run under the server; use auto or api")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := buildManager(ctx, cfg, loadSecrets(), serveFlags.commitDir, true)
	if err != nil {
		return err
	}
	defer w.Close()

	srv := api.NewServer(w.mgr, w.store)
	if cfg.PrometheusURL != "" {
		queries, qerr := metrics.NewQueryService(cfg.PrometheusURL)
		if qerr != nil {
			return qerr
		}
		srv.SetMetricsQuery(queries)
	}

	logx.Infof("recast server listening on %s (gate mode %s)", cfg.ListenAddr, cfg.GateMode)
	return srv.Serve(ctx, cfg.ListenAddr)
}

// status

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show a workflow's persisted status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := persistence.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		row, err := store.GetWorkflow(ctx, args[0])
		if err != nil {
			return err
		}
		items, err := store.ListWorkItems(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("workflow:  %s\n", row.ID)
		fmt.Printf("goal:      %s\n", row.Goal)
		fmt.Printf("status:    %s\n", row.Status)
		fmt.Printf("iteration: %d/%d\n", row.IterationCount, row.MaxIterations)
		fmt.Printf("approval:  %s\n", row.ApprovalStatus)
		fmt.Printf("updated:   %s\n", row.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		if row.Cancelled {
			fmt.Println("cancelled: yes")
		}
		if row.TerminalError != "" {
			fmt.Printf("error:     %s\n", row.TerminalError)
		}
		for _, it := range items {
			line := fmt.Sprintf("  %-12s %s", it.Status, it.FilePath)
			if it.ErrorMessage != "" {
				line += "  (" + it.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// resume

var resumeFlags struct {
	server string
}

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow-id> <approve|reject|modify> [feedback]",
	Short: "Deliver a review decision to a workflow suspended at the gate",
	Long: `Resume talks to a running recast server. The workflow must be in
AWAITING_REVIEW under api gate mode. Modify requires feedback; reject takes
it optionally.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(_ *cobra.Command, args []string) error {
		feedback := ""
		if len(args) == 3 {
			feedback = args[2]
		}
		body, err := json.Marshal(map[string]string{"action": args[1], "feedback": feedback})
		if err != nil {
			return err
		}

		url := fmt.Sprintf("%s/api/v1/resume/%s", strings.TrimRight(resumeFlags.server, "/"), args[0])
		resp, err := http.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("cannot reach server at %s: %w", resumeFlags.server, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("resume rejected: %s", strings.TrimSpace(string(msg)))
		}
		fmt.Printf("workflow %s resumed with %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeFlags.server, "server", "http://localhost:8080", "recast server URL")
}

// workflows

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List persisted workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := persistence.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.ListWorkflows(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("no workflows")
			return nil
		}
		for _, row := range rows {
			goal := row.Goal
			if len(goal) > 48 {
				goal = goal[:45] + "..."
			}
			fmt.Printf("%s  %-16s %-10s %s\n",
				row.ID, row.Status, row.UpdatedAt.Local().Format("Jan 02 15:04"), goal)
		}
		return nil
	},
}

// checkpoints / rewind

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <workflow-id>",
	Short: "List a workflow's persisted checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := persistence.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		cps, err := store.ListCheckpoints(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(cps) == 0 {
			fmt.Println("no checkpoints")
			return nil
		}
		for _, cp := range cps {
			fmt.Printf("%4d  %-16s %s\n", cp.Step, cp.NodeName,
				cp.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var rewindCmd = &cobra.Command{
	Use:   "rewind <workflow-id> <step>",
	Short: "Rewind a workflow to an earlier checkpoint",
	Long: `Rewind deletes every checkpoint after the given step and re-syncs the
workflow summary from the restored snapshot. The workflow continues from
that point on the next resume. Only suspended workflows should be rewound;
rewinding under a live driver loses the discarded steps' work.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := strconv.Atoi(args[1])
		if err != nil || step < 1 {
			return fmt.Errorf("step must be a positive integer, got %q", args[1])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := persistence.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		cp, err := store.RewindToStep(ctx, args[0], step)
		if err != nil {
			return err
		}
		ws, err := state.Restore(cp.Snapshot)
		if err != nil {
			return fmt.Errorf("checkpoint %d has a corrupt snapshot: %w", cp.Step, err)
		}
		if err := store.SaveWorkflow(ctx, ws); err != nil {
			return err
		}
		fmt.Printf("workflow %s rewound to step %d (%s)\n", args[0], cp.Step, cp.NodeName)
		return nil
	},
}

// secrets

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the encrypted API key store",
}

var secretsInitFlags struct {
	force bool
}

var secretsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the encrypted secrets file",
	Long: `Init collects provider API keys (from the environment when set,
prompted otherwise) and writes them encrypted to ~/.recast/secrets.json.enc.
The password is requested again at startup, or supplied via
RECAST_SECRETS_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		if config.SecretsFileExists(home) && !secretsInitFlags.force {
			return errors.New("secrets file already exists; pass --force to overwrite")
		}

		password, err := promptPassword("new password: ")
		if err != nil {
			return err
		}
		if password == "" {
			return errors.New("password must not be empty")
		}
		confirm, err := promptPassword("confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return errors.New("passwords do not match")
		}

		secrets := config.NewSecrets()
		for _, name := range []string{"GEMINI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				secrets.Set(name, v)
				fmt.Printf("%s: taken from environment\n", name)
				continue
			}
			v, perr := promptPassword(name + " (blank to skip): ")
			if perr != nil {
				return perr
			}
			if v != "" {
				secrets.Set(name, v)
			}
		}

		if err := secrets.Save(home, password); err != nil {
			return err
		}
		fmt.Printf("secrets written to %s\n", filepath.Join(home, ".recast", "secrets.json.enc"))
		return nil
	},
}

func init() {
	secretsInitCmd.Flags().BoolVar(&secretsInitFlags.force, "force", false, "overwrite an existing secrets file")
	secretsCmd.AddCommand(secretsInitCmd)
}

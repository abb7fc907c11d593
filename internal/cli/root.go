package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/cache"
	"cohorte/api/internal/config"
	"cohorte/api/internal/feedback"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/store"
	"cohorte/api/internal/workspace"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	dbPath     string
	policyFile string
	redisURL   string
	cfg        config.Config
}

// NewRootCmd builds the cohorte command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "cohorte",
		Short: "Cohorte - reader-panel feedback on scripts from the command line",
		Long: `Cohorte runs a panel of synthetic reader personas over a script and
turns their line-anchored feedback into comment threads kept in a local
database.

Example usage:
  cohorte analyze scene.txt                        # Analyze with the default reader
  cohorte analyze --glob "scripts/**/*.txt"        # Analyze every matching script
  cohorte analyze scene.txt --population panel.yaml --json
  cohorte threads scene.txt                        # Show stored threads
  cohorte mcp                                      # Serve MCP tools over stdio`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = config.Load()
			if opts.policyFile != "" {
				opts.cfg.PolicyFile = opts.policyFile
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "cohorte.db", "local thread database")
	root.PersistentFlags().StringVar(&opts.policyFile, "policy", "", "annotation policy YAML (default is built-in)")
	root.PersistentFlags().StringVar(&opts.redisURL, "redis-url", "", "cache analyses in Redis at this URL")

	root.AddCommand(newAnalyzeCmd(opts), newThreadsCmd(opts), newMCPCmd(opts))
	return root
}

func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openWorkspace wires the model client, the optional cache and the bolt
// store. The returned func releases them.
func (o *options) openWorkspace() (*workspace.Workspace, func(), error) {
	client, err := llm.NewClient(o.cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	policyCfg, err := config.LoadPolicy(o.cfg.PolicyFile)
	if err != nil {
		return nil, nil, err
	}

	var analysisCache feedback.Cache
	closeCache := func() {}
	if o.redisURL != "" {
		rc, err := cache.NewRedisCache(o.redisURL, o.cfg.AnalysisCacheTTL)
		if err != nil {
			return nil, nil, err
		}
		analysisCache = rc
		closeCache = func() { _ = rc.Close() }
	}
	requester := feedback.NewRequester(client, annotation.NewPolicy(policyCfg), analysisCache)

	st, err := store.NewBoltStore(o.dbPath)
	if err != nil {
		closeCache()
		return nil, nil, fmt.Errorf("failed to open thread store: %w", err)
	}
	ws := workspace.New(requester, st, o.cfg.MaxParallel, o.cfg.MaxPersonas)
	return ws, func() {
		_ = st.Close()
		closeCache()
	}, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cohorte/api/internal/feedback"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/workspace"
)

func newAnalyzeCmd(opts *options) *cobra.Command {
	var (
		glob       string
		population string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [FILE...]",
		Short: "Analyze scripts with the reader panel",
		Long: `Analyze runs every persona over each script, stores the feedback as
comment threads keyed by the script's path and prints the analyses.

Examples:
  cohorte analyze scene.txt
  cohorte analyze --glob "scripts/**/*.txt" --population panel.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(args, glob)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no scripts to analyze: pass files or --glob")
			}

			var personas []persona.Persona
			if population != "" {
				pop, err := persona.LoadFile(population)
				if err != nil {
					return err
				}
				personas = pop.Personas
			}
			panelSize := len(persona.Limit(personas, opts.cfg.MaxPersonas))

			ws, closeFn, err := opts.openWorkspace()
			if err != nil {
				return err
			}
			defer closeFn()

			reports := make([]workspace.Report, 0, len(files))
			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				if strings.TrimSpace(string(data)) == "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %s: empty script\n", path)
					continue
				}

				bar := newProgressBar(cmd.ErrOrStderr(), panelSize, path)
				report, err := ws.Analyze(cmd.Context(), workspace.Input{
					DocumentID: documentID(path),
					Title:      filepath.Base(path),
					Text:       string(data),
					Personas:   personas,
					OnDone:     func(feedback.Result) { _ = bar.Add(1) },
				})
				_ = bar.Finish()
				if err != nil {
					return fmt.Errorf("analyze %s: %w", path, err)
				}
				reports = append(reports, report)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			for _, r := range reports {
				printReport(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&glob, "glob", "g", "", "analyze every file matching this pattern (supports **)")
	cmd.Flags().StringVarP(&population, "population", "p", "", "population YAML file (default is a single neutral reader)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print reports as JSON")
	return cmd
}

// documentID keys a script's threads by its cleaned slash path.
func documentID(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// collectFiles merges explicit paths with glob matches, deduplicated and
// sorted.
func collectFiles(args []string, pattern string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	for _, a := range args {
		add(a)
	}
	if pattern == "" {
		sort.Strings(files)
		return files, nil
	}

	pattern = filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	root := globBase(pattern)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		matched, err := doublestar.Match(pattern, filepath.ToSlash(path))
		if err == nil && matched {
			add(path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expand glob: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// globBase is the longest leading directory of pattern without
// metacharacters.
func globBase(pattern string) string {
	parts := strings.Split(pattern, "/")
	base := make([]string, 0, len(parts))
	for _, part := range parts[:len(parts)-1] {
		if strings.ContainsAny(part, "*?[{\\") {
			break
		}
		base = append(base, part)
	}
	if len(base) == 0 {
		return "."
	}
	if len(base) == 1 && base[0] == "" {
		return "/"
	}
	return filepath.FromSlash(strings.Join(base, "/"))
}

func newProgressBar(w io.Writer, total int, path string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]Reading[reset] %s", filepath.Base(path))),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

func printReport(w io.Writer, r workspace.Report) {
	fmt.Fprintf(w, "\n%s\n", r.DocumentID)
	fmt.Fprintf(w, "  Lines:   %d\n", len(r.Lines))
	fmt.Fprintf(w, "  Threads: %d\n", len(r.Threads))
	for _, a := range r.Analyses {
		verdict := "did not like it"
		if a.Overall.Liked {
			verdict = "liked it"
		}
		fmt.Fprintf(w, "\n  %s (%s)\n", a.PersonaName, verdict)
		if a.Overall.Comment != "" {
			fmt.Fprintf(w, "    %s\n", a.Overall.Comment)
		}
		for _, ann := range a.Annotations {
			fmt.Fprintf(w, "    L%d [%s/%s] %s\n", ann.Line, ann.Category, ann.Severity, ann.Comment)
		}
	}
	if len(r.FailedPersonas) > 0 {
		fmt.Fprintf(w, "\n  No usable feedback from: %s\n", strings.Join(r.FailedPersonas, ", "))
	}
}

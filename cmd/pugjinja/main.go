package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pugjinja/pugjinja/pkg/ast"
	"github.com/pugjinja/pugjinja/pkg/build"
	"github.com/pugjinja/pugjinja/pkg/compiler"
	"github.com/pugjinja/pugjinja/pkg/runtime"
)

var rootConfigPath string
var verbose bool

var rootCmd = cobra.Command{
	Use:           "pugjinja",
	Short:         "Compile Pug syntax trees into Jinja templates",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

func loadRootConfig(cmd *cobra.Command) (config, error) {
	return loadConfig(rootConfigPath, cmd.Flags().Changed("config"))
}

var compileBaseDir string
var compileDumpTree bool

var compileCmd = cobra.Command{
	Use:   "compile [file]",
	Short: "Compile one tree file and print the template source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if compileDumpTree {
			return runDumpTree(cmd.OutOrStdout(), args[0])
		}
		cfg, err := loadRootConfig(cmd)
		if err != nil {
			return err
		}
		opts := cfg.compilerOptions(slog.Default())
		if compileBaseDir != "" {
			opts.SearchDirs.BaseDir = compileBaseDir
		}
		return runCompile(cmd.OutOrStdout(), args[0], opts)
	},
}

func runCompile(w io.Writer, path string, opts compiler.Options) error {
	out, err := compiler.CompileFile(path, opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// runDumpTree prints the decoded tree without resolving includes.
func runDumpTree(w io.Writer, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	tree, err := ast.Parse(src)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	var includes []string
	_ = ast.Walk(ast.VisitorFunc(func(n ast.Node) error {
		if inc, ok := n.(*ast.Include); ok {
			includes = append(includes, inc.Path)
		}
		return nil
	}), tree)
	slog.Debug("decoded tree", "path", path, "includes", includes)
	_, err = io.WriteString(w, ast.Pretty(tree))
	return err
}

var renderDataPath string
var renderDirs []string

var renderCmd = cobra.Command{
	Use:   "render [template]",
	Short: "Compile and render a template with data from a YAML file",
	Long: `Render loads the named template from the template directories. Tree
files are compiled on load, so extends and include directives between them
work as they do once deployed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRootConfig(cmd)
		if err != nil {
			return err
		}
		return runRender(cmd.OutOrStdout(), cfg, renderDirs, args[0], renderDataPath)
	},
}

func runRender(w io.Writer, cfg config, dirs []string, name, dataPath string) error {
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	data, err := loadData(dataPath)
	if err != nil {
		return err
	}
	// Without a configured base_dir, absolute-style includes resolve under
	// the first template directory.
	r := runtime.NewRenderer(build.Loader{Dirs: dirs, Compiler: cfg.compilerOptions(slog.Default())})
	r.Syntax = cfg.syntax()
	out, err := r.RenderTemplate(name, data)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	_, err = io.WriteString(w, out)
	return err
}

var buildJobs int
var buildCheck bool

var buildCmd = cobra.Command{
	Use:   "build [src] [out]",
	Short: "Compile every tree file under src into out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRootConfig(cmd)
		if err != nil {
			return err
		}
		b := newBuilder(cmd, cfg, args[0], args[1], nil)
		res, err := b.Build(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "compiled %d files in %s\n", len(res.Compiled), res.Duration.Round(time.Millisecond))
		return res.Err()
	},
}

func newBuilder(cmd *cobra.Command, cfg config, src, out string, metrics *build.Metrics) *build.Builder {
	jobs := cfg.Jobs
	if cmd.Flags().Changed("jobs") {
		jobs = buildJobs
	}
	return build.New(build.Options{
		SrcDir:          src,
		OutDir:          out,
		OutputExtension: cfg.OutputExtension,
		Compiler:        cfg.compilerOptions(slog.Default()),
		Check:           buildCheck,
		Jobs:            jobs,
		Logger:          slog.Default(),
		Metrics:         metrics,
	})
}

var watchMetricsAddr string
var watchDebounce time.Duration

var watchCmd = cobra.Command{
	Use:   "watch [src] [out]",
	Short: "Build src into out and rebuild on every change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRootConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var metrics *build.Metrics
		if watchMetricsAddr != "" {
			metrics = build.NewMetrics(nil)
			srv, err := serveMetrics(watchMetricsAddr, metrics)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		b := newBuilder(cmd, cfg, args[0], args[1], metrics)
		return b.Watch(ctx, watchDebounce, func(res build.Result, err error) {
			if err == nil && res.Err() != nil {
				slog.Warn("build had failures", "failed", len(res.Failed), "compiled", len(res.Compiled))
			}
		})
	},
}

func serveMetrics(addr string, metrics *build.Metrics) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", defaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	compileCmd.Flags().StringVar(&compileBaseDir, "base-dir", "", "Directory that absolute-style includes resolve under")
	compileCmd.Flags().BoolVar(&compileDumpTree, "dump-tree", false, "Print the decoded syntax tree instead of compiling it")
	rootCmd.AddCommand(&compileCmd)

	renderCmd.Flags().StringVar(&renderDataPath, "data", "", "YAML file with template variables")
	renderCmd.Flags().StringArrayVar(&renderDirs, "dir", nil, "Template directory, may be repeated (default \".\")")
	rootCmd.AddCommand(&renderCmd)

	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Concurrent compiles (default from config, then GOMAXPROCS)")
	buildCmd.Flags().BoolVar(&buildCheck, "check", false, "Parse each generated template and fail on syntax errors")
	rootCmd.AddCommand(&buildCmd)

	watchCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Concurrent compiles (default from config, then GOMAXPROCS)")
	watchCmd.Flags().BoolVar(&buildCheck, "check", false, "Parse each generated template and fail on syntax errors")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", build.DefaultDebounceInterval, "Quiet period before a rebuild")
	rootCmd.AddCommand(&watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

package internal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/goplus/tiffpkg/internal/config"
)

var (
	configFile string
	logLevel   string
	verbose    bool
)

// Set by PersistentPreRunE for every subcommand.
var (
	toolConfig *config.Config
	logger     *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tiffpkg",
	Short: "tiffpkg configures and packages the TinyTIFF library",
	Long: `tiffpkg resolves the TinyTIFF build options, adjusts the platform settings,
hands the resulting variables to CMake and packages the exposed components.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is tiffpkg.yaml in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show native build output")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, used, err := config.Load(config.LoadOptions{ConfigFile: configFile})
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.Verbose = true
	}
	l, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}
	if used != "" {
		l.Debug("loaded config", "file", used)
	}
	toolConfig, logger = cfg, l
	return nil
}

// newLogger returns a logger writing to w. Terminals get the human readable
// format, anything else logfmt.
func newLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	formatter := log.LogfmtFormatter
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		formatter = log.TextFormatter
	}
	return log.NewWithOptions(w, log.Options{
		Level:     lvl,
		Formatter: formatter,
		Prefix:    "tiffpkg",
	}), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

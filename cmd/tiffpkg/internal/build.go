package internal

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/tiffpkg/internal/build"
	"github.com/goplus/tiffpkg/pkgs/buildsys"
	"github.com/goplus/tiffpkg/recipe"
	"github.com/goplus/tiffpkg/x/cmake"
)

var (
	buildInputs inputs
	buildDryRun bool
	buildForce  bool
	buildOutput string
)

var buildCmd = &cobra.Command{
	Use:   "build SOURCE_DIR",
	Short: "Configure, build and package TinyTIFF from a source tree",
	Long: `Build resolves the options and settings, builds the TinyTIFF sources in
SOURCE_DIR with CMake and installs the exposed components, together with the
package manifest and pkg-config files, into the workspace.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildInputs.register(buildCmd)
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "Print the CMake commands without running them")
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "Rebuild even if the configuration is cached")
	buildCmd.Flags().StringVar(&buildOutput, "out", "", "Copy the installed package to a directory or .zip file")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	srcDir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	opts, settings, err := buildInputs.resolve(toolConfig.Profile)
	if err != nil {
		return err
	}

	// Resolve output path to absolute before build
	if buildOutput != "" {
		if buildOutput, err = filepath.Abs(buildOutput); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	builder, err := build.NewBuilder(build.Options{
		WorkspaceDir:   toolConfig.Workspace,
		Logger:         logger,
		NewBuildSystem: newCMake(toolConfig.Generator, toolConfig.Verbose, cmd.ErrOrStderr()),
		Force:          buildForce,
	})
	if err != nil {
		return fmt.Errorf("failed to create builder: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := builder.Build(ctx, build.Request{
		Recipe:    recipe.TinyTIFF(),
		SourceDir: srcDir,
		Options:   opts,
		Settings:  settings,
		DryRun:    buildDryRun,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if buildDryRun {
		for _, c := range res.Commands {
			fmt.Fprintln(out, strings.Join(c, " "))
		}
		return nil
	}

	data, err := os.ReadFile(res.ManifestPath)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	for _, pc := range res.PkgConfigs {
		logger.Info("pkg-config", "file", pc)
	}

	if buildOutput != "" {
		if err := outputResult(res.InstallDir, buildOutput); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// newCMake returns the build system factory of the build command. Native
// build output goes to w only when verbose.
func newCMake(generator string, verbose bool, w io.Writer) build.NewBuildSystemFunc {
	return func(sourceDir, buildDir, installDir string, cfg *recipe.Configuration) buildsys.BuildSystem {
		c := cmake.ForConfiguration(sourceDir, buildDir, installDir, cfg)
		if generator != "" {
			c.Generator(generator)
		}
		if verbose {
			c.Stdout, c.Stderr = w, w
		} else {
			c.Stdout, c.Stderr = io.Discard, io.Discard
		}
		return c
	}
}

// outputResult writes the installed package to dest.
// If dest ends with ".zip", creates a zip archive; otherwise copies the directory.
func outputResult(srcDir, dest string) error {
	if strings.HasSuffix(dest, ".zip") {
		return zipDir(srcDir, dest)
	}
	return os.CopyFS(dest, os.DirFS(srcDir))
}

// zipDir creates a zip archive at dest from the contents of srcDir.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/calcgrid/internal/app"
	"github.com/vk/calcgrid/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// settings are the flags shared by every command.
type settings struct {
	configPath      string
	logLevel        string
	logFormat       string
	storeDriver     string
	storePath       string
	redisURL        string
	address         string
	healthcheckPort int
}

func (s *settings) appConfig() (*app.Config, error) {
	cfg, err := app.NewConfig(app.Config{
		ConfigPath:      s.configPath,
		LogLevel:        strings.ToLower(s.logLevel),
		LogFormat:       strings.ToLower(s.logFormat),
		StoreDriver:     s.storeDriver,
		StorePath:       s.storePath,
		RedisURL:        s.redisURL,
		Address:         s.address,
		HealthcheckPort: s.healthcheckPort,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

// NewRootCommand builds the calcgrid command tree. Output and logs go to
// outW. ctx bounds the serve command.
func NewRootCommand(ctx context.Context, outW io.Writer, loader config.Loader) *cobra.Command {
	s := &settings{}

	root := &cobra.Command{
		Use:   "calcgrid",
		Short: "calcgrid - a reactive model engine",
		Long: `calcgrid calculates models of data, formula and function members that
recalculate whenever something they depend on changes. Models are saved as
JSON documents and can be served over HTTP with a live change stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&s.configPath, "config", "c", "", "Path to an HCL config file.")
	flags.StringVar(&s.logLevel, "log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	flags.StringVar(&s.logFormat, "log-format", "", "Log output format: 'text' or 'json'.")
	flags.StringVar(&s.storeDriver, "store", "", "Snapshot store: 'memory' or 'sqlite'.")
	flags.StringVar(&s.storePath, "store-path", "", "Path of the sqlite snapshot database.")
	flags.StringVar(&s.redisURL, "redis-url", "", "Publish change events to this Redis server.")

	newApp := func() (*app.App, error) {
		cfg, err := s.appConfig()
		if err != nil {
			return nil, err
		}
		return app.NewApp(outW, cfg, loader), nil
	}

	root.AddCommand(
		newRunCommand(ctx, newApp),
		newCheckCommand(ctx, newApp),
		newServeCommand(ctx, s, newApp),
		newSnapshotsCommand(ctx, outW, newApp),
	)
	return root
}

func newRunCommand(ctx context.Context, newApp func() (*app.App, error)) *cobra.Command {
	var saveAs string
	cmd := &cobra.Command{
		Use:   "run DOCUMENT",
		Short: "Calculate a saved document and print its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			return a.Run(ctx, args[0], saveAs)
		},
	}
	cmd.Flags().StringVar(&saveAs, "save", "", "Also store the calculated document under this id.")
	return cmd
}

func newCheckCommand(ctx context.Context, newApp func() (*app.App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check PATH...",
		Short: "Load documents and report members that calculate to an error",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			failed, err := a.Check(ctx, args)
			if err != nil {
				return err
			}
			if failed > 0 {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d document(s) failed the check", failed)}
			}
			return nil
		},
	}
}

func newServeCommand(ctx context.Context, s *settings, newApp func() (*app.App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve documents over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&s.address, "addr", "", "Listen address of the API server.")
	cmd.Flags().IntVar(&s.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	return cmd
}

func newSnapshotsCommand(ctx context.Context, outW io.Writer, newApp func() (*app.App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			infos, err := a.Snapshots(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(outW, "%s\t%s\t%s\t%s\n", info.ID, info.Name, info.Revision, info.SavedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			return a.DeleteSnapshot(ctx, args[0])
		},
	})
	return cmd
}

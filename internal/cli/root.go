package cli

import (
	"errors"
	"fmt"

	"telchat/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Options struct {
	Config  string
	Verbose bool
	Stats   bool
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "telchat",
		Short:         "telchat - telecom assistant chat console",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(opts.Config)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(
		&opts.Config,
		"config",
		"",
		"config file (default: ./telchat.yaml)",
	)
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	root.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log requests and retries to stderr")
	root.Flags().BoolVar(&opts.Stats, "stats", false, "print exchange statistics on exit")

	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command and reports a failure on stderr.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

func initConfig(configFile string) error {
	config.Register(viper.GetViper())
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("telchat")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/telchat")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

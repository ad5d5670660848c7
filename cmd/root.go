// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/config"
	"github.com/xkilldash9x/erplogin/internal/observability"
)

// NewRootCommand builds a fresh command tree with production dependencies.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDependencies())
}

func newRootCommand(deps dependencies) *cobra.Command {
	a := &app{deps: deps}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "erplogin",
		Short:         "Automated login to the IIT Kharagpur ERP portal.",
		Long:          "erplogin signs in to the ERP portal using stored credentials, answers the security question and reads the email OTP from your mailbox.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := initializeConfig(v, a.cfgFile); err != nil {
				return err
			}
			if logLevel != "" {
				v.Set("logger.level", logLevel)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			observability.InitializeLogger(cfg.Logger())
			a.logger = observability.GetLogger()
			a.logger.Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
				zap.String("store_backend", cfg.Store().Backend),
			)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./erplogin.yaml, then ~/.erplogin/erplogin.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate("erplogin version {{.Version}}\n")

	rootCmd.AddCommand(
		newLoginCmd(a),
		newSetupCmd(a),
		newSessionCmd(a),
		newMailboxCmd(a),
		newStatusCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI with ctx and reports a failure on stderr.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		return err
	}
	return nil
}

// formatError prefixes classified errors with their category so the user knows where to
// look.
func formatError(err error) string {
	kind := schemas.KindOf(err)
	if kind == "" {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Error [%s]: %s", kind.Category(), err.Error())
}

// initializeConfig loads .env, the YAML config file and ERPLOGIN_* environment variables
// into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	config.SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("erplogin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.erplogin")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

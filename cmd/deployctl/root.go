package main

import (
	"github.com/spf13/cobra"

	"github.com/OfficeDev/teams-toolkit-sub012/bootstrap"
	"github.com/OfficeDev/teams-toolkit-sub012/config"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
)

// app carries what every command needs once the root has run.
type app struct {
	cfg       *config.Config
	logLevel  string
	logFormat string

	services *bootstrap.Services
}

// Services builds the Azure services on first use so commands that never
// touch Azure do not need credentials.
func (a *app) Services() (*bootstrap.Services, error) {
	if a.services != nil {
		return a.services, nil
	}
	s, err := bootstrap.New(a.cfg)
	if err != nil {
		return nil, err
	}
	a.services = s
	return s, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "deployctl",
		Short: "Deploy artifacts and templates to Azure",
		Long: `deployctl packages build output and zip-deploys it to App Service and Functions,
syncs static websites to blob storage, and deploys ARM and Bicep templates.
Deploys run in-process, or durably on a Temporal worker with "submit".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.App.LogLevel = a.logLevel
			}
			if a.logFormat != "" {
				cfg.App.LogFormat = a.logFormat
			}
			logging.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides APP_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: json or console (overrides APP_LOG_FORMAT)")

	rootCmd.AddCommand(newDeployCmd(a))
	rootCmd.AddCommand(newArmCmd(a))
	rootCmd.AddCommand(newSubmitCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

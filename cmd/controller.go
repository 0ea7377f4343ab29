// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"bgpsdn/common/daemon"
	"bgpsdn/common/httpserver"
	"bgpsdn/common/reporter"
	"bgpsdn/controller"
)

// ControllerConfiguration represents the configuration file for the
// controller command. The controller settings are at the top level.
type ControllerConfiguration struct {
	Reporting  reporter.Configuration
	HTTP       httpserver.Configuration
	Controller controller.Configuration `mapstructure:",squash" yaml:",inline"`
}

// Reset resets the configuration for the controller command to its
// default value.
func (c *ControllerConfiguration) Reset() {
	*c = ControllerConfiguration{
		Reporting:  reporter.DefaultConfiguration(),
		HTTP:       httpserver.DefaultConfiguration(),
		Controller: controller.DefaultConfiguration(),
	}
}

type controllerOptions struct {
	ConfigRelatedOptions
	CheckMode bool
}

// ControllerOptions stores the command-line option values for the
// controller command.
var ControllerOptions controllerOptions

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Start the BGP controller",
	Long: `The controller receives routes from BGP peers through ExaBGP, sends them
to route tables and announces the best ones to other peers, rewriting their
next-hops according to the topology of the local network.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := ControllerConfiguration{}
		ControllerOptions.Path = args[0]
		if err := ControllerOptions.Parse(cmd.OutOrStdout(), "controller", &config); err != nil {
			return err
		}
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("cannot locate configuration file: %w", err)
		}
		config.Controller.ResolvePaths(filepath.Dir(absPath))

		r, err := reporter.New(config.Reporting)
		if err != nil {
			return fmt.Errorf("unable to initialize reporter: %w", err)
		}
		return controllerStart(r, config, ControllerOptions.CheckMode)
	},
}

func init() {
	RootCmd.AddCommand(controllerCmd)
	controllerCmd.Flags().BoolVarP(&ControllerOptions.ConfigRelatedOptions.Dump, "dump", "D", false,
		"Dump configuration before starting")
	controllerCmd.Flags().BoolVarP(&ControllerOptions.CheckMode, "check", "C", false,
		"Check configuration, but does not start")
}

func controllerStart(r *reporter.Reporter, config ControllerConfiguration, checkOnly bool) error {
	// Initialize the various components
	daemonComponent, err := daemon.New(r)
	if err != nil {
		return fmt.Errorf("unable to initialize daemon component: %w", err)
	}
	httpComponent, err := httpserver.New(r, config.HTTP, httpserver.Dependencies{
		Daemon: daemonComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize http component: %w", err)
	}
	controllerComponent, err := controller.New(r, config.Controller, controller.Dependencies{
		Daemon: daemonComponent,
		HTTP:   httpComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize controller component: %w", err)
	}

	// Expose some information and metrics
	addCommonHTTPHandlers(r, httpComponent)
	versionMetrics(r)

	// If we only asked for a check, stop here.
	if checkOnly {
		return nil
	}

	// Start all the components.
	components := append([]any{httpComponent}, controllerComponent.Components()...)
	return StartStopComponents(r, daemonComponent, components)
}

// addCommonHTTPHandlers configures the endpoints for metrics,
// healthchecks and version.
func addCommonHTTPHandlers(r *reporter.Reporter, httpComponent *httpserver.Component) {
	httpComponent.AddHandler("/api/v0/metrics", r.MetricsHTTPHandler())
	httpComponent.GinRouter.GET("/api/v0/healthcheck", r.HealthcheckHTTPHandler)
	httpComponent.GinRouter.GET("/api/v0/version", versionHandler)
}

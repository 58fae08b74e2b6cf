// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/sengine/sekernel/cfg"
	"github.com/sengine/sekernel/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd returns the sekernel command. run receives the configuration
// once flags and the optional config file have been merged, rationalized and
// validated.
func NewRootCmd(run func(c *cfg.Config) error) (*cobra.Command, error) {
	var (
		cfgFile string
		v       = viper.New()
	)

	rootCmd := &cobra.Command{
		Use:   "sekernel [flags]",
		Short: "Run a synthetic workload on the sekernel thread pool",
		Long: `sekernel brings up the engine kernel (logging, root path, telemetry and
the default thread pool) and drives the pool with a configurable synthetic
workload: jobs that sleep cooperatively, repeat, or panic on demand. It
prints a summary and exits non-zero when a job panicked or the pool did not
drain in time.`,
		Version:      common.GetVersion(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			return run(c)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file. Flags set on the command line take precedence.")
	if err := cfg.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("error while binding flags: %w", err)
	}

	return rootCmd, nil
}

func loadConfig(v *viper.Viper, cfgFile string) (*cfg.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error while reading the config file: %w", err)
		}
	}

	var c cfg.Config
	err := v.Unmarshal(&c, viper.DecodeHook(cfg.DecodeHook()), func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("error while unmarshaling the config: %w", err)
	}

	if err = cfg.Rationalize(v, &c); err != nil {
		return nil, fmt.Errorf("error while rationalizing the config: %w", err)
	}
	if err = cfg.ValidateConfig(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &c, nil
}

// Execute runs the sekernel command and exits the process on failure.
func Execute() {
	rootCmd, err := NewRootCmd(func(c *cfg.Config) error {
		return runWorkload(context.Background(), c, os.Stdout)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err = rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

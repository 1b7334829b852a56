package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pinscope/pkg/config"
)

var configInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configInit {
			if _, err := os.Stat(cfgFile); err == nil {
				return fmt.Errorf("%s already exists", cfgFile)
			}
			if err := config.Default().Save(cfgFile); err != nil {
				return err
			}
			fmt.Println("Wrote", cfgFile)
			return nil
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "write a default config file")
	rootCmd.AddCommand(configCmd)
}

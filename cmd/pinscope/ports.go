package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pinscope/pkg/uartmon"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := uartmon.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

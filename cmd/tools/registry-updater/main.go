// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"gigflow/pkg/registry"
)

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportPath := exportCmd.String("path", "configs/activity-registry.json", "Path to write the registry file")

	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validatePath := validateCmd.String("path", "configs/activity-registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:]) //nolint:errcheck
		reg := registry.Bidding()
		if err := registry.Save(reg, *exportPath); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d activities to %s\n", len(reg.Activities), *exportPath)

	case "validate":
		validateCmd.Parse(os.Args[2:]) //nolint:errcheck
		if err := validateRegistry(*validatePath); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

// validateRegistry checks the file on its own and against the activities the
// workers actually serve.
func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	if drift := reg.Diff(registry.Bidding()); len(drift) > 0 {
		return fmt.Errorf("registry is out of date: %v", drift)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  export   Write the bidding activities to the registry file
  validate Validate the registry file against the running workers
  help     Show this help message

Examples:
  registry-updater export -path configs/activity-registry.json
  registry-updater validate -path configs/activity-registry.json
`)
}

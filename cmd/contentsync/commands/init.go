package commands

import (
	"path/filepath"

	"git.home.luguber.info/inful/contentsync/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	// With an output directory the file is written there as "contentsync.yaml".
	if i.Output != "" {
		return RunInit(filepath.Join(i.Output, "contentsync.yaml"), i.Force)
	}
	return RunInit(root.Config, i.Force)
}

func RunInit(configPath string, force bool) error {
	printf("Initializing contentsync configuration\n")
	printf("Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		printf("Initialization failed\n")
		return err
	}
	printf("initialized successfully\n")
	return nil
}

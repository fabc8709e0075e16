package setup

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const usage = `Symptom assessment MCP server setup

Usage:
  mcp-server setup <command> [options]

Commands:
  install    Register the server with the desktop MCP client
  status     Show the current registration
  remove     Remove the registration

Options for install:
  --binary    Path to the server binary (default: this executable)
  --data-dir  Data directory for the SQLite database
  --config    Client config file (default: platform location)
`

// CLI provides command-line interface for setup operations.
type CLI struct {
	out io.Writer
}

// NewCLI creates a new setup CLI writing to out.
func NewCLI(out io.Writer) *CLI {
	if out == nil {
		out = os.Stdout
	}
	return &CLI{out: out}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return nil
	}

	switch args[0] {
	case "install":
		return c.install(args[1:])
	case "status":
		return c.status(args[1:])
	case "remove":
		return c.remove(args[1:])
	case "help", "--help", "-h":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("unknown setup command: %s", args[0])
	}
}

func (c *CLI) install(args []string) error {
	fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	binary := fs.String("binary", "", "path to the server binary")
	dataDir := fs.String("data-dir", DefaultDataDir(), "data directory")
	configPath := fs.String("config", "", "client config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *binary == "" {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve executable: %w", err)
		}
		*binary = execPath
	}

	path, err := Register(Options{
		ConfigPath: *configPath,
		BinaryPath: *binary,
		DataDir:    *dataDir,
		Env: map[string]string{
			"OPENAI_API_KEY": os.Getenv("OPENAI_API_KEY"),
			"NCBI_API_KEY":   os.Getenv("NCBI_API_KEY"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %s in %s\n", ServerName, path)
	fmt.Fprintf(c.out, "  binary:   %s\n", *binary)
	fmt.Fprintf(c.out, "  data dir: %s\n", *dataDir)
	fmt.Fprintln(c.out, "Restart the client to load the assess_symptoms and search_evidence tools.")
	return nil
}

func (c *CLI) status(args []string) error {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	configPath := fs.String("config", "", "client config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := GetStatus(*configPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config file: %s\n", st.ConfigPath)
	if !st.Registered {
		fmt.Fprintln(c.out, "Registered:  no")
		return nil
	}
	fmt.Fprintln(c.out, "Registered:  yes")
	fmt.Fprintf(c.out, "Binary:      %s (%s)\n", st.BinaryPath, presence(st.BinaryPresent))
	fmt.Fprintf(c.out, "Data dir:    %s (%s)\n", st.DataDir, presence(st.DataDirExists))
	return nil
}

func (c *CLI) remove(args []string) error {
	fs := pflag.NewFlagSet("remove", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	configPath := fs.String("config", "", "client config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	removed, err := Unregister(*configPath)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintf(c.out, "Removed %s\n", ServerName)
	} else {
		fmt.Fprintf(c.out, "%s was not registered\n", ServerName)
	}
	return nil
}

func presence(ok bool) string {
	if ok {
		return "found"
	}
	return "missing"
}

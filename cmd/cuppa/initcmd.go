package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// initAnswers carries the form results.
type initAnswers struct {
	Path        string
	Driver      string
	SQLitePath  string
	Bind        string
	AdminToken  string
	EmbedderKey string
	ProviderKey string
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively generate a starter configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			a := initAnswers{
				Path:        "cuppa.yaml",
				Driver:      "sqlite",
				SQLitePath:  "cuppa.db",
				Bind:        "127.0.0.1:8080",
				EmbedderKey: "${OPENAI_API_KEY}",
				ProviderKey: "${ANTHROPIC_API_KEY}",
			}

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Config file").
						Description("Where to write the configuration").
						Value(&a.Path),
					huh.NewSelect[string]().
						Title("Storage driver").
						Options(
							huh.NewOption("SQLite (persistent, single file)", "sqlite"),
							huh.NewOption("Memory (ephemeral, for development)", "memory"),
						).
						Value(&a.Driver),
					huh.NewInput().
						Title("SQLite database path").
						Value(&a.SQLitePath),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Gateway bind address").
						Value(&a.Bind),
					huh.NewInput().
						Title("Admin token").
						Description("Empty disables the admin endpoints").
						Value(&a.AdminToken),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Embedding API key").
						Description("${VAR} references are expanded at load time").
						Value(&a.EmbedderKey),
					huh.NewInput().
						Title("Chat provider API key").
						Value(&a.ProviderKey),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			if _, err := os.Stat(a.Path); err == nil {
				var overwrite bool
				confirm := huh.NewConfirm().
					Title(fmt.Sprintf("%s exists. Overwrite?", a.Path)).
					Value(&overwrite)
				if err := confirm.Run(); err != nil {
					return err
				}
				if !overwrite {
					return fmt.Errorf("aborted: %s already exists", a.Path)
				}
			}

			if err := os.WriteFile(a.Path, []byte(renderConfig(a)), 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\nNext: cuppa seed --file seed.example.yaml, then cuppa serve\n", a.Path)
			return nil
		},
	}
}

// renderConfig emits a commented starter file rather than a marshaled
// struct so the knobs people tune most are visible.
func renderConfig(a initAnswers) string {
	return fmt.Sprintf(`version: "1"

server:
  bind: %q
  # Empty disables the admin endpoints.
  admin_token: %q

storage:
  driver: %s
  sqlite:
    path: %q

embedder:
  driver: openai
  api_key: %q
  model: text-embedding-3-small

provider:
  driver: anthropic
  api_key: %q

chat:
  default_persona: enthusiast
  session_ttl: 30m
  response_ttl: 1h
`, a.Bind, a.AdminToken, a.Driver, a.SQLitePath, a.EmbedderKey, a.ProviderKey)
}

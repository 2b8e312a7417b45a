// Package service runs the bot as a macOS launchd user agent.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/chris/nudge/config"
)

const (
	label     = "com.nudge.bot"
	plistName = label + ".plist"
	binDest   = "/usr/local/bin/nudge"
)

// runArgs is what launchd passes to the installed binary.
var runArgs = []string{"bot"}

// agentPaths are the files the agent lives in under a home directory.
type agentPaths struct {
	home string
}

func userPaths() agentPaths {
	home, _ := os.UserHomeDir()
	return agentPaths{home: home}
}

func (p agentPaths) plistDir() string  { return filepath.Join(p.home, "Library", "LaunchAgents") }
func (p agentPaths) plist() string     { return filepath.Join(p.plistDir(), plistName) }
func (p agentPaths) logDir() string    { return filepath.Join(p.home, "Library", "Logs") }
func (p agentPaths) stdoutLog() string { return filepath.Join(p.logDir(), "nudge-stdout.log") }
func (p agentPaths) stderrLog() string { return filepath.Join(p.logDir(), "nudge-stderr.log") }

// Install seeds ~/.nudge/config from ./.env if needed, checks that the agent
// would start with the resulting settings, then copies the binary to
// /usr/local/bin and loads a launchd plist that runs `nudge bot`.
func Install() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	cfg, workDir, err := prepare(cwd)
	if err != nil {
		return err
	}

	if err := installBinary(); err != nil {
		return err
	}

	p := userPaths()
	plist, err := renderPlist(p, workDir)
	if err != nil {
		return fmt.Errorf("generating plist: %w", err)
	}
	// Unload an existing agent first; errors mean it wasn't loaded.
	if _, err := os.Stat(p.plist()); err == nil {
		_ = launchctl("unload", p.plist())
	}
	if err := os.MkdirAll(p.plistDir(), 0755); err != nil {
		return fmt.Errorf("creating LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(p.plist(), []byte(plist), 0644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Printf("wrote plist to %s\n", p.plist())

	if err := launchctl("load", p.plist()); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	fmt.Printf("service loaded (%s, %s store, working in %s)\n", cfg.LLMProvider, storeKind(cfg), workDir)
	return nil
}

// prepare seeds the installed config and loads it the way the agent will see
// it at runtime: <workDir>/.env first, then ~/.nudge/config, with none of the
// installing shell's environment. It fails if the bot could not start.
func prepare(cwd string) (*config.Config, string, error) {
	configFile := config.ConfigFile()
	seeded, err := seedConfig(filepath.Join(cwd, ".env"), configFile)
	if err != nil {
		return nil, "", err
	}
	if seeded {
		fmt.Printf("seeded config from .env -> %s\n", configFile)
	}

	installed, err := config.FromFiles(configFile)
	if err != nil {
		return nil, "", fmt.Errorf("no config to install with: create %s or run install next to a .env: %w", configFile, err)
	}
	workDir := resolveWorkDir(installed, cwd)

	cfg, err := config.FromFiles(filepath.Join(workDir, ".env"), configFile)
	if err != nil {
		return nil, "", err
	}
	if err := preflight(cfg); err != nil {
		return nil, "", fmt.Errorf("not installing, fix %s first: %w", configFile, err)
	}
	return cfg, workDir, nil
}

// preflight rejects settings that would leave launchd restarting a bot that
// exits on startup.
func preflight(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DiscordToken == "" {
		return errors.New("DISCORD_BOT_TOKEN is not set; the agent runs `nudge bot`, which requires it")
	}
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicKey == "" && cfg.AnthropicToken == "" {
			return errors.New("LLM_PROVIDER is anthropic but neither ANTHROPIC_API_KEY nor ANTHROPIC_AUTH_TOKEN is set")
		}
	case "openai":
		if cfg.OpenAIKey == "" {
			return errors.New("LLM_PROVIDER is openai but OPENAI_API_KEY is not set")
		}
	}
	return nil
}

// seedConfig copies envFile to configFile unless configFile already exists.
// A missing envFile is not an error.
func seedConfig(envFile, configFile string) (bool, error) {
	if _, err := os.Stat(configFile); err == nil {
		return false, nil
	}
	data, err := os.ReadFile(envFile)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", envFile, err)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return false, fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}

func installBinary() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	data, err := os.ReadFile(exe)
	if err != nil {
		return fmt.Errorf("reading binary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(binDest), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(binDest), err)
	}
	if err := os.WriteFile(binDest, data, 0755); err != nil {
		return fmt.Errorf("copying binary to %s: %w", binDest, err)
	}
	fmt.Printf("installed binary to %s\n", binDest)
	return nil
}

// resolveWorkDir picks the launchd working directory. A relative SQLite path
// (including the ./nudge.db default) resolves against cwd, the directory
// install ran from; a Postgres URL or absolute path doesn't care, so those
// run from ~/.nudge.
func resolveWorkDir(cfg *config.Config, cwd string) string {
	if cfg.DatabaseURL != "" || cwd == "" || filepath.IsAbs(cfg.DatabasePath) {
		return config.ConfigDir()
	}
	return cwd
}

func storeKind(cfg *config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}

// Uninstall unloads the agent and removes the plist and the binary. The
// config in ~/.nudge and the task database are left alone.
func Uninstall() error {
	p := userPaths()
	if _, err := os.Stat(p.plist()); err == nil {
		if err := launchctl("unload", p.plist()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unload failed: %v\n", err)
		}
		if err := os.Remove(p.plist()); err != nil {
			return fmt.Errorf("removing plist: %w", err)
		}
		fmt.Printf("removed %s\n", p.plist())
	} else {
		fmt.Println("plist not found, skipping")
	}

	if err := os.Remove(binDest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing binary: %w", err)
	}
	fmt.Println("uninstalled; config in", config.ConfigDir(), "was kept")
	return nil
}

func Start() error { return launchctl("start", label) }

func Stop() error { return launchctl("stop", label) }

func Restart() error {
	_ = Stop()
	return Start()
}

// Status prints launchd's view of the agent and the settings it will run with.
func Status() error {
	cmd := exec.Command("launchctl", "list", label)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Println("service is not loaded")
	}

	cfg, err := config.FromFiles(config.ConfigFile())
	if err != nil {
		fmt.Printf("no installed config at %s\n", config.ConfigFile())
		return nil
	}
	cron := cfg.NudgeCron
	if cron == "" {
		cron = "off"
	}
	fmt.Printf("provider: %s\nstore: %s\ndaily nudge: %s\n", cfg.LLMProvider, storeKind(cfg), cron)
	return nil
}

// Logs follows both log files.
func Logs() error {
	p := userPaths()
	cmd := exec.Command("tail", "-f", p.stdoutLog(), p.stderrLog())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func launchctl(args ...string) error {
	cmd := exec.Command("launchctl", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("launchctl %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
{{- range .Args}}
		<string>{{.}}</string>
{{- end}}
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

type plistData struct {
	Label     string
	BinPath   string
	Args      []string
	WorkDir   string
	StdoutLog string
	StderrLog string
}

func renderPlist(p agentPaths, workDir string) (string, error) {
	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, plistData{
		Label:     label,
		BinPath:   binDest,
		Args:      runArgs,
		WorkDir:   workDir,
		StdoutLog: p.stdoutLog(),
		StderrLog: p.stderrLog(),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

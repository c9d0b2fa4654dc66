// Package config assembles the run controller's full configuration surface
// from CLI flags, environment variables, and an optional config file. It
// mirrors the teacher's own viper wiring in cmd/root.go's initConfig(),
// generalized from that command tree's MCP-agent flags to this orchestrator's
// run-level surface (workspace layout, preview server, iteration budget,
// template bootstrap, and the code-generation backend).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"loopctl/internal/errs"
)

// AgentMode selects which AgentClient backend generates and patches code.
type AgentMode string

const (
	// AgentModeMock drives a deterministic, regex-based editor — no network
	// calls, used for tests and for exercising the run controller's phase
	// sequencing without a live model.
	AgentModeMock AgentMode = "mock"
	// AgentModeAnthropic asks an Anthropic model to emit whole-file content,
	// through the same internal/llmtypes.Model contract the planner and
	// evaluator already use.
	AgentModeAnthropic AgentMode = "anthropic"
	// AgentModeLocal shells out to a locally installed code-generation CLI.
	AgentModeLocal AgentMode = "local"
)

// Config is the full configuration surface this orchestrator reads, spanning
// spec §6's enumerated environment variables plus the logging/CLI fields the
// teacher's rootCmd binds alongside them.
type Config struct {
	WorkspaceRoot  string
	ProjectDirName string
	PreviewHost    string
	PreviewPort    int

	AgenticEval     bool
	AgenticMaxSteps int
	MaxIterations   int

	TemplateRepoURL string
	TemplateRef     string
	RunTemplateInit bool
	PublishToSite   bool

	AgentMode AgentMode

	PlannerModel   string
	EvaluatorModel string
	AgentModel     string
	RubricID       string

	// Credentials. Never persisted to artifacts; read only to construct the
	// LLM clients the run controller wires up.
	AnthropicAPIKey string
	GeminiAPIKey    string
	GeminiProject   string
	GeminiLocation  string

	// MCPServerCommand/Args name the headless-browser automation subprocess.
	MCPServerCommand string
	MCPServerArgs    []string

	// Optional repository snapshot (spec §6's "Optional repository
	// interface"). Absent credentials disable it without affecting anything
	// else, matching the spec's explicit degrade-gracefully requirement.
	RepoRemoteURL   string
	RepoBaseBranch  string
	RepoAccessToken string

	LogFile   string
	LogLevel  string
	LogFormat string
	Debug     bool
}

// defaults mirrors spec §6's named defaults, applied as viper.SetDefault
// calls so any other source (flag, env, config file) takes precedence.
func applyViperDefaults(v *viper.Viper) {
	v.SetDefault("project_dir_name", "project")
	v.SetDefault("preview_host", "127.0.0.1")
	v.SetDefault("preview_port", 8000)
	v.SetDefault("agentic_eval", true)
	v.SetDefault("agentic_max_steps", 30)
	v.SetDefault("max_iterations", 10)
	v.SetDefault("template_ref", "main")
	v.SetDefault("agent_mode", string(AgentModeMock))
	v.SetDefault("rubric_id", "default-v1")
	v.SetDefault("mcp_server_command", "mcp-browser-server")
	v.SetDefault("planner_model", "gemini-2.0-flash")
	v.SetDefault("evaluator_model", "gemini-2.0-flash")
	v.SetDefault("agent_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// Load reads Config out of v. Callers (internal/cli) are expected to have
// already bound persistent flags and called v.AutomaticEnv() / ReadInConfig()
// before this runs; Load itself only registers defaults and validates.
func Load(v *viper.Viper) (Config, error) {
	applyViperDefaults(v)

	cfg := Config{
		WorkspaceRoot:  v.GetString("workspace_root"),
		ProjectDirName: v.GetString("project_dir_name"),
		PreviewHost:    v.GetString("preview_host"),
		PreviewPort:    v.GetInt("preview_port"),

		AgenticEval:     v.GetBool("agentic_eval"),
		AgenticMaxSteps: v.GetInt("agentic_max_steps"),
		MaxIterations:   v.GetInt("max_iterations"),

		TemplateRepoURL: v.GetString("template_repo_url"),
		TemplateRef:     v.GetString("template_ref"),
		RunTemplateInit: v.GetBool("run_template_init"),
		PublishToSite:   v.GetBool("publish_to_site"),

		AgentMode: AgentMode(strings.ToLower(strings.TrimSpace(v.GetString("agent_mode")))),

		PlannerModel:   v.GetString("planner_model"),
		EvaluatorModel: v.GetString("evaluator_model"),
		AgentModel:     v.GetString("agent_model"),
		RubricID:       v.GetString("rubric_id"),

		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		GeminiAPIKey:    v.GetString("gemini_api_key"),
		GeminiProject:   v.GetString("gemini_project"),
		GeminiLocation:  v.GetString("gemini_location"),

		MCPServerCommand: v.GetString("mcp_server_command"),

		RepoRemoteURL:   v.GetString("repo_remote_url"),
		RepoBaseBranch:  v.GetString("repo_base_branch"),
		RepoAccessToken: v.GetString("repo_access_token"),

		LogFile:   v.GetString("log-file"),
		LogLevel:  v.GetString("log-level"),
		LogFormat: v.GetString("log-format"),
		Debug:     v.GetBool("debug"),
	}
	if args := strings.TrimSpace(v.GetString("mcp_server_args")); args != "" {
		cfg.MCPServerArgs = strings.Fields(args)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("%w: WORKSPACE_ROOT is required", errs.ErrConfig)
	}
	switch c.AgentMode {
	case AgentModeMock, AgentModeAnthropic, AgentModeLocal:
	default:
		return fmt.Errorf("%w: unknown AGENT_MODE %q (want mock, anthropic, or local)", errs.ErrConfig, c.AgentMode)
	}
	if c.AgentMode == AgentModeAnthropic && c.AnthropicAPIKey == "" {
		return fmt.Errorf("%w: AGENT_MODE=anthropic requires anthropic_api_key", errs.ErrConfig)
	}
	if c.PreviewPort <= 0 || c.PreviewPort > 65535 {
		return fmt.Errorf("%w: preview_port %d out of range", errs.ErrConfig, c.PreviewPort)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max_iterations must be positive", errs.ErrConfig)
	}
	return nil
}

// RepositoryEnabled reports whether the optional version-control snapshot
// feature has enough configuration to run.
func (c Config) RepositoryEnabled() bool {
	return c.RepoRemoteURL != "" && c.RepoAccessToken != ""
}

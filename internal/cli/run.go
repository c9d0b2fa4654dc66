package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/genai"

	"loopctl/internal/config"
	"loopctl/internal/llm/anthropicadapter"
	"loopctl/internal/llm/vertex"
	"loopctl/internal/llmtypes"
	"loopctl/pkg/agentclient"
	"loopctl/pkg/eventbus"
	"loopctl/pkg/evaluator"
	"loopctl/pkg/logger"
	"loopctl/pkg/planner"
	"loopctl/pkg/runcontroller"
)

// defaultPlannerPromptTemplate is used when --planner-prompt-template names
// no file. It matches planner.Plan's two placeholders.
const defaultPlannerPromptTemplate = `You are a planner for a small web app. Produce a JSON object with keys
"overview" ({"title", "outline", "modules": [{"module_id","module_title"}]}),
"ui_spec" (a free-form layout description), and "build_prompt" (a complete,
self-contained instruction for a code-generation agent to produce the first
version of the page).

User requirements:
{user_requirements}

Additional notes:
{notes}

Respond with JSON only.`

var (
	taskFlag                 string
	plannerPromptTemplateArg string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one plan/generate/evaluate/patch loop to completion",
	RunE:  runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&taskFlag, "task", "", "natural-language description of the page to build (required)")
	flags.StringVar(&plannerPromptTemplateArg, "planner-prompt-template", "", "path to a planner prompt template file (default: built-in)")

	flags.String("workspace-root", "", "directory under which each run gets its own workspace (required)")
	flags.String("project-dir-name", "project", "name of the generated project directory inside each run's workspace")
	flags.String("preview-host", "127.0.0.1", "host the preview server binds to")
	flags.Int("preview-port", 8000, "port the preview server binds to")

	flags.Bool("agentic-eval", true, "use the multi-turn tool-use evaluator instead of a single scripted pass")
	flags.Int("agentic-max-steps", 30, "maximum evaluator tool-use turns")
	flags.Int("max-iterations", 10, "maximum number of generate/evaluate/patch iterations")

	flags.String("template-repo-url", "", "optional git repository to clone as the starting project")
	flags.String("template-ref", "main", "branch/tag/commit to check out from template-repo-url")
	flags.Bool("run-template-init", false, "run the template's own init script after cloning")
	flags.Bool("publish-to-site", false, "also copy the project into the run's site/ directory")

	flags.String("agent-mode", "mock", "code-generation backend: mock, anthropic, or local")
	flags.String("planner-model", "gemini-2.0-flash", "model ID the planner calls")
	flags.String("evaluator-model", "gemini-2.0-flash", "model ID the evaluator calls")
	flags.String("agent-model", "claude-3-5-sonnet-20241022", "model ID the anthropic agent backend calls")
	flags.String("rubric-id", "default-v1", "identifies the scoring rubric recorded in manifests")

	flags.String("mcp-server-command", "mcp-browser-server", "headless-browser MCP server executable")
	flags.String("mcp-server-args", "", "space-separated arguments passed to mcp-server-command")

	flags.String("repo-remote-url", "", "optional git remote to push a run/<id> branch to after each patch")
	flags.String("repo-base-branch", "", "base branch the optional repository snapshot branches from")
	flags.String("repo-access-token", "", "credential for repo-remote-url")

	for _, name := range []string{
		"workspace-root", "project-dir-name", "preview-host", "preview-port",
		"agentic-eval", "agentic-max-steps", "max-iterations",
		"template-repo-url", "template-ref", "run-template-init", "publish-to-site",
		"agent-mode", "planner-model", "evaluator-model", "agent-model", "rubric-id",
		"mcp-server-command", "mcp-server-args",
		"repo-remote-url", "repo-base-branch", "repo-access-token",
	} {
		viper.BindPFlag(viperKeyFor(name), flags.Lookup(name))
	}
}

// viperKeyFor translates a dash-separated flag name into the snake_case key
// internal/config.Load reads, so binding a flag is a one-line loop above
// rather than one repetitive BindPFlag call per flag.
func viperKeyFor(flagName string) string {
	out := make([]byte, 0, len(flagName))
	for i := 0; i < len(flagName); i++ {
		if flagName[i] == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, flagName[i])
	}
	return string(out)
}

func runRun(cmd *cobra.Command, args []string) error {
	if taskFlag == "" {
		return fmt.Errorf("--task is required")
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log, err := logger.CreateLogger(cfg.LogFile, cfg.LogLevel, cfg.LogFormat, cfg.LogFile == "")
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	plannerModel, err := buildGeminiModel(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building planner model: %w", err)
	}
	evaluatorModel, err := buildGeminiModel(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building evaluator model: %w", err)
	}

	template := defaultPlannerPromptTemplate
	if plannerPromptTemplateArg != "" {
		loaded, err := planner.LoadTemplate(plannerPromptTemplateArg)
		if err != nil {
			return err
		}
		template = loaded
	}
	p := planner.New(plannerModel, cfg.PlannerModel, template, log)
	e := evaluator.New(evaluatorModel, cfg.EvaluatorModel, evaluator.DefaultRubric, log)
	e.Agentic = cfg.AgenticEval
	if cfg.AgenticMaxSteps > 0 {
		e.MaxTurns = cfg.AgenticMaxSteps
	}

	var agentModel llmtypes.Model
	if cfg.AgentMode == config.AgentModeAnthropic {
		client := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicAPIKey))
		agentModel = anthropicadapter.New(client, cfg.AgentModel, log)
	}
	diffsDir := filepath.Join(cfg.WorkspaceRoot, "diffs")
	agentClient, err := agentclient.New(string(cfg.AgentMode), diffsDir, agentModel, cfg.AgentModel, log)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	defer bus.Close()

	rc := runcontroller.New(cfg, p, e, agentClient, log, bus)
	manifest, runErr := rc.Run(ctx, taskFlag)

	log.Infof("run %s finished: stop_reason=%s score=%d passed=%t preview=%s",
		manifest.RunID, manifest.StopReason, manifest.FinalScore, manifest.FinalPassed, manifest.PreviewURL)
	if runErr != nil {
		return runErr
	}
	if !manifest.FinalPassed {
		return fmt.Errorf("run stopped without passing (stop_reason=%s, score=%d)", manifest.StopReason, manifest.FinalScore)
	}
	return nil
}

// buildGeminiModel constructs the google.golang.org/genai-backed llmtypes.Model
// the planner and evaluator share, matching the teacher's own vertex adapter
// wiring (API-key auth against the Gemini Developer API, not full Vertex
// service-account auth, since the orchestrator only needs one model call
// shape and no project/location scoping beyond what GeminiProject/Location
// optionally provide).
func buildGeminiModel(ctx context.Context, cfg config.Config, log logger.Logger) (llmtypes.Model, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiProject != "" {
		clientConfig.Project = cfg.GeminiProject
		clientConfig.Location = cfg.GeminiLocation
		clientConfig.Backend = genai.BackendVertexAI
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, err
	}
	return vertex.New(client, cfg.PlannerModel, log), nil
}

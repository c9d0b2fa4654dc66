package agentclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

// mockBackend is a deterministic, regex-based editor used for tests and for
// exercising the run controller's phase sequencing without a live model.
// Grounded on original_source/orchestrator/openhands_client.py's
// MockOpenHandsClient: generate_code's fixed HTML scaffold,
// apply_patch_plan's per-file action handling, and
// _apply_natural_language_change's small set of regex-driven edits.
type mockBackend struct {
	log logger.Logger
}

func newMockBackend(log logger.Logger) *mockBackend {
	return &mockBackend{log: log}
}

func (b *mockBackend) name() string { return "mock" }

func (b *mockBackend) generateFiles(ctx context.Context, task string, requirements map[string]string, workspace string) (map[string]string, string, string, error) {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: system-ui, -apple-system, sans-serif; padding: 20px; background: #f5f5f5; }
        .container { max-width: 800px; margin: 0 auto; background: white; padding: 40px; border-radius: 8px; }
        h1 { color: #333; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>Mock generated content</p>
    </div>
</body>
</html>
`, task, task)
	return map[string]string{"index.html": html}, "mock generation complete", "", nil
}

func (b *mockBackend) patchFiles(ctx context.Context, plan model.PatchPlan, workspace string) (map[string]string, string, string, error) {
	files := make(map[string]string)
	var stdout, stderr strings.Builder

	for _, f := range plan.Files {
		abs := filepath.Join(workspace, filepath.FromSlash(f.Path))
		fmt.Fprintf(&stdout, "Processing: %s\n  Action: %s\n  Description: %s\n", f.Path, f.Action, f.Description)

		switch f.Action {
		case model.PatchModify:
			original, err := os.ReadFile(abs)
			if err != nil {
				fmt.Fprintf(&stderr, "  could not read %s: %v\n", f.Path, err)
				continue
			}
			modified := applyMockModifications(string(original), f)
			if modified != string(original) {
				files[f.Path] = modified
				fmt.Fprintf(&stdout, "  modified %s\n", f.Path)
			}
		case model.PatchCreate:
			files[f.Path] = defaultContentFor(f.Path, f.Description)
			fmt.Fprintf(&stdout, "  created %s\n", f.Path)
		case model.PatchDelete:
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(&stderr, "  could not delete %s: %v\n", f.Path, err)
				continue
			}
			fmt.Fprintf(&stdout, "  deleted %s\n", f.Path)
		default:
			fmt.Fprintf(&stderr, "  could not apply action %q to %s\n", f.Action, f.Path)
		}
	}
	return files, stdout.String(), stderr.String(), nil
}

var (
	colorPropRe    = regexp.MustCompile(`color:\s*#?\w+`)
	fontSizeRe     = regexp.MustCompile(`font-size:\s*(\d+)px`)
	paddingRe      = regexp.MustCompile(`padding:\s*(\d+)px`)
	buttonSelector = "button {"
)

// applyMockModifications mirrors _apply_mock_modifications: each entry of
// f.Changes goes through the keyword-driven natural-language pass when
// there are any, else a generic improvement pass keyed off the file's
// description.
func applyMockModifications(content string, f model.PatchFile) string {
	if len(f.Changes) > 0 {
		for _, change := range f.Changes {
			content = applyNaturalLanguageChange(content, change)
		}
		return content
	}
	return applyGenericImprovements(content, f.Description)
}

func applyNaturalLanguageChange(content, desc string) string {
	lower := strings.ToLower(desc)

	if strings.Contains(lower, "color") || strings.Contains(lower, "colour") {
		switch {
		case strings.Contains(lower, "blue"):
			content = colorPropRe.ReplaceAllString(content, "color: #667eea")
		case strings.Contains(lower, "red"):
			content = colorPropRe.ReplaceAllString(content, "color: #e53e3e")
		case strings.Contains(lower, "green"):
			content = colorPropRe.ReplaceAllString(content, "color: #48bb78")
		}
	}

	if strings.Contains(lower, "font") && strings.Contains(lower, "size") &&
		(strings.Contains(lower, "larger") || strings.Contains(lower, "bigger")) {
		content = fontSizeRe.ReplaceAllStringFunc(content, func(m string) string {
			n, _ := strconv.Atoi(fontSizeRe.FindStringSubmatch(m)[1])
			return fmt.Sprintf("font-size: %dpx", n+4)
		})
	}

	if strings.Contains(lower, "padding") && (strings.Contains(lower, "more") || strings.Contains(lower, "increase")) {
		content = paddingRe.ReplaceAllStringFunc(content, func(m string) string {
			n, _ := strconv.Atoi(paddingRe.FindStringSubmatch(m)[1])
			return fmt.Sprintf("padding: %dpx", n+8)
		})
	}

	if strings.Contains(lower, "button") && strings.Contains(lower, "style") && !strings.Contains(content, buttonSelector) {
		if i := strings.Index(content, "</style>"); i != -1 {
			style := `
        button {
            padding: 12px 24px;
            border-radius: 6px;
            border: none;
            background: #667eea;
            color: white;
            cursor: pointer;
            transition: all 0.3s ease;
        }

        button:hover {
            background: #5568d3;
            transform: translateY(-2px);
        }
`
			content = content[:i] + style + content[i:]
		}
	}
	return content
}

func applyGenericImprovements(content, description string) string {
	lower := strings.ToLower(description)

	if (strings.Contains(lower, "style") || strings.Contains(lower, "design") || strings.Contains(lower, "visual")) &&
		!strings.Contains(content, "transition") {
		if i := strings.Index(content, "</style>"); i != -1 {
			improvement := `
        * {
            transition: all 0.3s ease;
        }
`
			content = content[:i] + improvement + content[i:]
		}
	}

	if strings.Contains(lower, "error") || strings.Contains(lower, "bug") || strings.Contains(lower, "fix") {
		if strings.Count(content, "<div>") > strings.Count(content, "</div>") {
			content += "\n</div>"
		}
		if strings.Count(content, "<button>") > strings.Count(content, "</button>") {
			content += "\n</button>"
		}
	}
	return content
}

func defaultContentFor(path, description string) string {
	switch {
	case strings.HasSuffix(path, ".html"):
		return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generated File</title>
</head>
<body>
    <h1>New File</h1>
    <p>%s</p>
</body>
</html>
`, description)
	case strings.HasSuffix(path, ".css"):
		return fmt.Sprintf("/* %s */\nbody {\n    font-family: sans-serif;\n    padding: 20px;\n}\n", description)
	case strings.HasSuffix(path, ".js"):
		return fmt.Sprintf("// %s\nconsole.log('Generated file');\n", description)
	default:
		return fmt.Sprintf("# %s\n", description)
	}
}

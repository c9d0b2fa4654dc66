// Package artifacts manages the typed store of per-run output: screenshots,
// evaluation verdicts, logs, generated files, and reports, indexed by a
// manifest.json that is rewritten in full after every append.
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Screenshot is one screenshot_iter_N.png entry.
type Screenshot struct {
	Type      string         `json:"type"`
	Iteration int            `json:"iteration"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path"`
	SizeBytes int64          `json:"size_bytes"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Evaluation is one evaluation_iter_N.json entry.
type Evaluation struct {
	Type      string    `json:"type"`
	Iteration int       `json:"iteration"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Score     int       `json:"score"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is one <name>.log entry.
type Log struct {
	Type      string    `json:"type"`
	LogType   string    `json:"log_type"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// File is an arbitrary generated-content artifact.
type File struct {
	Type      string         `json:"type"`
	FileType  string         `json:"file_type"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path"`
	SizeBytes int64          `json:"size_bytes"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Report is a named report.json entry.
type Report struct {
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Manifest is the five-list index persisted as manifest.json.
type Manifest struct {
	Screenshots []Screenshot `json:"screenshots"`
	Evaluations []Evaluation `json:"evaluations"`
	Logs        []Log        `json:"logs"`
	Files       []File       `json:"files"`
	Reports     []Report     `json:"reports"`
}

// Store owns artifactsDir and its manifest. Every save method returns the
// canonical on-disk path and re-persists the whole manifest.
type Store struct {
	mu           sync.Mutex
	artifactsDir string
	manifestFile string
	manifest     Manifest
}

// New creates (or reuses) artifactsDir and an empty in-memory manifest.
func New(artifactsDir string) (*Store, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifacts dir: %w", err)
	}
	return &Store{
		artifactsDir: artifactsDir,
		manifestFile: filepath.Join(artifactsDir, "manifest.json"),
	}, nil
}

// SaveScreenshot copies srcPath into artifactsDir under a structured name and
// records it in the manifest.
func (s *Store) SaveScreenshot(srcPath string, iteration int, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := fmt.Sprintf("screenshot_iter_%d.png", iteration)
	dest := filepath.Join(s.artifactsDir, filename)

	var sizeBytes int64
	if _, err := os.Stat(srcPath); err == nil {
		if err := copyFile(srcPath, dest); err != nil {
			return "", fmt.Errorf("copying screenshot: %w", err)
		}
	}
	if info, err := os.Stat(dest); err == nil {
		sizeBytes = info.Size()
	}

	s.manifest.Screenshots = append(s.manifest.Screenshots, Screenshot{
		Type: "screenshot", Iteration: iteration, Filename: filename, Path: dest,
		SizeBytes: sizeBytes, Timestamp: time.Now(), Metadata: metadata,
	})
	return dest, s.saveManifestLocked()
}

// SaveEvaluation writes evaluation as JSON and records it in the manifest.
func (s *Store) SaveEvaluation(evaluation map[string]any, iteration int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := fmt.Sprintf("evaluation_iter_%d.json", iteration)
	path := filepath.Join(s.artifactsDir, filename)
	if err := writeJSON(path, evaluation); err != nil {
		return "", err
	}

	score, _ := evaluation["score"].(int)
	passed, _ := evaluation["passed"].(bool)
	s.manifest.Evaluations = append(s.manifest.Evaluations, Evaluation{
		Type: "evaluation", Iteration: iteration, Filename: filename, Path: path,
		Score: score, Passed: passed, Timestamp: time.Now(),
	})
	return path, s.saveManifestLocked()
}

// SaveLog writes content as a text log and records it in the manifest.
func (s *Store) SaveLog(content, name, logType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := name + ".log"
	path := filepath.Join(s.artifactsDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing log: %w", err)
	}
	info, _ := os.Stat(path)

	s.manifest.Logs = append(s.manifest.Logs, Log{
		Type: "log", LogType: logType, Filename: filename, Path: path,
		SizeBytes: statSize(info), Timestamp: time.Now(),
	})
	return path, s.saveManifestLocked()
}

// SaveFile writes arbitrary generated content and records it in the manifest.
func (s *Store) SaveFile(content, filename, fileType string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.artifactsDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	info, _ := os.Stat(path)

	s.manifest.Files = append(s.manifest.Files, File{
		Type: "file", FileType: fileType, Filename: filename, Path: path,
		SizeBytes: statSize(info), Timestamp: time.Now(), Metadata: metadata,
	})
	return path, s.saveManifestLocked()
}

// SaveReport writes a named report as JSON and records it in the manifest.
func (s *Store) SaveReport(report map[string]any, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		name = "report"
	}
	filename := name + ".json"
	path := filepath.Join(s.artifactsDir, filename)
	if err := writeJSON(path, report); err != nil {
		return "", err
	}

	s.manifest.Reports = append(s.manifest.Reports, Report{
		Type: "report", Filename: filename, Path: path, Timestamp: time.Now(),
	})
	return path, s.saveManifestLocked()
}

// Screenshots returns a copy of the screenshot list sorted by iteration.
func (s *Store) Screenshots() []Screenshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Screenshot(nil), s.manifest.Screenshots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out
}

// Evaluations returns a copy of the evaluation list sorted by iteration.
func (s *Store) Evaluations() []Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Evaluation(nil), s.manifest.Evaluations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out
}

// LatestScreenshot returns the screenshot with the highest iteration, if any.
func (s *Store) LatestScreenshot() (Screenshot, bool) {
	shots := s.Screenshots()
	if len(shots) == 0 {
		return Screenshot{}, false
	}
	return shots[len(shots)-1], true
}

// LatestEvaluation returns the evaluation with the highest iteration, if any.
func (s *Store) LatestEvaluation() (Evaluation, bool) {
	evals := s.Evaluations()
	if len(evals) == 0 {
		return Evaluation{}, false
	}
	return evals[len(evals)-1], true
}

// LoadManifest reloads the manifest from disk, replacing the in-memory copy.
func (s *Store) LoadManifest() (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.manifestFile)
	if os.IsNotExist(err) {
		return s.manifest, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	s.manifest = m
	return m, nil
}

// Summary reports per-kind and total artifact counts.
type Summary struct {
	TotalArtifacts int    `json:"total_artifacts"`
	Screenshots    int    `json:"screenshots"`
	Evaluations    int    `json:"evaluations"`
	Logs           int    `json:"logs"`
	Files          int    `json:"files"`
	Reports        int    `json:"reports"`
	ArtifactsDir   string `json:"artifacts_dir"`
}

// GetSummary reports counts across all five manifest lists.
func (s *Store) GetSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{
		Screenshots:  len(s.manifest.Screenshots),
		Evaluations:  len(s.manifest.Evaluations),
		Logs:         len(s.manifest.Logs),
		Files:        len(s.manifest.Files),
		Reports:      len(s.manifest.Reports),
		ArtifactsDir: s.artifactsDir,
	}
	sum.TotalArtifacts = sum.Screenshots + sum.Evaluations + sum.Logs + sum.Files + sum.Reports
	return sum
}

// saveManifestLocked rewrites manifest.json in full; callers must hold s.mu.
func (s *Store) saveManifestLocked() error {
	return writeJSON(s.manifestFile, s.manifest)
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func statSize(info os.FileInfo) int64 {
	if info == nil {
		return 0
	}
	return info.Size()
}

// FallbackIndexHTML renders a minimal placeholder page for a workspace that
// has not yet received generated content, naming task in the body so a
// preview hit before the first generation still shows something meaningful.
func FallbackIndexHTML(task string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Generated Page</title>
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
      background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%);
      min-height: 100vh; display: flex; align-items: center; justify-content: center; padding: 20px;
    }
    .container { background: white; border-radius: 16px; padding: 48px; max-width: 600px; box-shadow: 0 20px 60px rgba(0,0,0,0.3); text-align: center; }
    h1 { font-size: 32px; margin-bottom: 16px; color: #1a202c; }
    p { color: #4a5568; line-height: 1.6; margin-bottom: 24px; }
    .task { background: #f7fafc; border-left: 4px solid #667eea; padding: 16px; border-radius: 4px; text-align: left; margin-top: 24px; }
    .task strong { color: #667eea; }
  </style>
</head>
<body>
  <div class="container">
    <h1>Generated Page</h1>
    <p>This is the initial template. The build agent will replace this with generated content.</p>
    <div class="task"><strong>Task:</strong><br>%s</div>
  </div>
</body>
</html>
`, task)
}

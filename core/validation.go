package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
)

// StepStatus represents the outcome of a single validation step.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
	StepSkipped
)

// ValidationStep is one named startup check with its outcome.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
}

// SuiteResult is the aggregate outcome of a validation run.
type SuiteResult struct {
	Steps       []ValidationStep
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite runs the startup checks for the scan engine: config shape,
// endpoint URLs, and writability of the directories we will need. Checks are
// local-only so startup never blocks on an unreachable backend; the first
// real request surfaces connectivity problems with a proper error kind.
type ValidationSuite struct {
	cfg          *Config
	output       io.Writer
	showProgress bool
}

// NewValidationSuite creates a ValidationSuite for the given configuration.
func NewValidationSuite(cfg *Config) *ValidationSuite {
	return &ValidationSuite{
		cfg:          cfg,
		output:       os.Stdout,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// Validate runs all checks in sequence and returns the aggregate result.
func (s *ValidationSuite) Validate() SuiteResult {
	start := time.Now()

	if s.showProgress {
		s.printHeader("vitalscan configuration check")
	}

	steps := []ValidationStep{
		s.runStep("Analysis endpoint", s.checkAnalyzeURL),
		s.runStep("Nutrition endpoints", s.checkNutritionURLs),
		s.runStep("Assistant configuration", s.checkAssistant),
		s.runStep("History database directory", s.checkHistoryDir),
		s.runStep("Capture temp directory", s.checkTempDir),
		s.runStep("Spool directory", s.checkSpoolDir),
	}

	result := SuiteResult{
		Steps:    steps,
		Duration: time.Since(start),
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed, StepSkipped:
			result.PassedSteps++
		case StepWarning:
			result.Warnings++
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
		}
	}
	result.Success = result.FailedSteps == 0

	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) runStep(name string, fn func() ValidationStep) ValidationStep {
	step := fn()
	step.Name = name
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *ValidationSuite) checkAnalyzeURL() ValidationStep {
	if s.cfg.AnalyzeURL == "" {
		return ValidationStep{
			Status:  StepWarning,
			Message: "ANALYZE_URL not set; pulse measurement is disabled",
		}
	}
	if err := validateEndpointURL("ANALYZE_URL", s.cfg.AnalyzeURL); err != nil {
		return ValidationStep{Status: StepFailed, Message: "invalid analysis endpoint", Error: err}
	}
	return ValidationStep{Status: StepPassed, Message: s.cfg.AnalyzeURL}
}

func (s *ValidationSuite) checkNutritionURLs() ValidationStep {
	if s.cfg.NutritionURL == "" && s.cfg.BarcodeURL == "" {
		return ValidationStep{
			Status:  StepWarning,
			Message: "NUTRITION_URL and BARCODE_URL not set; food scanning is disabled",
		}
	}
	for name, raw := range map[string]string{
		"NUTRITION_URL": s.cfg.NutritionURL,
		"BARCODE_URL":   s.cfg.BarcodeURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateEndpointURL(name, raw); err != nil {
			return ValidationStep{Status: StepFailed, Message: "invalid nutrition endpoint", Error: err}
		}
	}
	return ValidationStep{Status: StepPassed, Message: "configured"}
}

func (s *ValidationSuite) checkAssistant() ValidationStep {
	if s.cfg.AssistantAPIKey == "" && s.cfg.AssistantBaseURL == "" {
		return ValidationStep{
			Status:  StepWarning,
			Message: "ASSISTANT_API_KEY not set; chat assistant is disabled",
		}
	}
	return ValidationStep{Status: StepPassed, Message: "configured"}
}

func (s *ValidationSuite) checkHistoryDir() ValidationStep {
	return checkWritableDir(filepath.Dir(s.cfg.HistoryDBPath))
}

func (s *ValidationSuite) checkTempDir() ValidationStep {
	return checkWritableDir(s.cfg.TempDir)
}

func (s *ValidationSuite) checkSpoolDir() ValidationStep {
	if s.cfg.SpoolDir == "" {
		return ValidationStep{Status: StepSkipped, Message: "spool mode not configured"}
	}
	return checkWritableDir(s.cfg.SpoolDir)
}

// checkWritableDir verifies dir exists (creating it if needed) and accepts writes.
func checkWritableDir(dir string) ValidationStep {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ValidationStep{Status: StepFailed, Message: "cannot create " + dir, Error: err}
	}
	probe, err := os.CreateTemp(dir, ".vitalscan-probe-*")
	if err != nil {
		return ValidationStep{Status: StepFailed, Message: dir + " is not writable", Error: err}
	}
	probe.Close()
	os.Remove(probe.Name())
	return ValidationStep{Status: StepPassed, Message: dir}
}

var (
	passMark = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	skipMark = color.New(color.FgHiBlack).SprintFunc()
)

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintf(s.output, "\n%s\n", color.New(color.Bold).Sprint(title))
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	switch step.Status {
	case StepPassed:
		fmt.Fprintf(s.output, "  %s %s: %s\n", passMark("✓"), step.Name, step.Message)
	case StepWarning:
		fmt.Fprintf(s.output, "  %s %s: %s\n", warnMark("!"), step.Name, step.Message)
	case StepSkipped:
		fmt.Fprintf(s.output, "  %s %s: %s\n", skipMark("-"), step.Name, step.Message)
	case StepFailed:
		fmt.Fprintf(s.output, "  %s %s: %s", failMark("✗"), step.Name, step.Message)
		if step.Error != nil {
			fmt.Fprintf(s.output, " (%v)", step.Error)
		}
		fmt.Fprintln(s.output)
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	if result.Success {
		fmt.Fprintf(s.output, "%s %d checks passed", passMark("✓"), result.PassedSteps)
	} else {
		fmt.Fprintf(s.output, "%s %d of %d checks failed", failMark("✗"), result.FailedSteps, len(result.Steps))
	}
	if result.Warnings > 0 {
		fmt.Fprintf(s.output, ", %d warnings", result.Warnings)
	}
	fmt.Fprintf(s.output, " (%v)\n\n", result.Duration.Round(time.Millisecond))
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{"serve", "handle", "correlation", "config", "version"}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	cases := [][]string{
		{"serve", "--help"},
		{"handle", "--help"},
		{"correlation", "get", "--help"},
		{"correlation", "put", "--help"},
		{"config", "validate", "--help"},
		{"config", "show", "--help"},
	}
	for _, args := range cases {
		out, err := executeCommand(args...)
		if err != nil {
			t.Errorf("%s failed: %v", strings.Join(args, " "), err)
		}
		if out == "" {
			t.Errorf("%s produced no output", strings.Join(args, " "))
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

// ---- config ----

func TestConfigValidate(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("NOTIFIER_CORRELATION_DSN", "")
	t.Setenv("DYNAMODB_TABLE", "")
	path := writeFile(t, "notifier.yaml", "slack:\n  token: xoxb-test\ncorrelation:\n  dsn: memory://\n")

	out, err := executeCommand("config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("NOTIFIER_CORRELATION_DSN", "")
	t.Setenv("DYNAMODB_TABLE", "")
	path := writeFile(t, "notifier.yaml", "log:\n  format: json\n")

	out, err := executeCommand("config", "validate", "--config", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "slack.token") {
		t.Errorf("output should name slack.token, got: %s", out)
	}
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("GITHUB_ACCESS_TOKEN", "")
	path := writeFile(t, "notifier.yaml", "slack:\n  token: xoxb-secret\ngithub:\n  token: ghp_secret\n")

	out, err := executeCommand("config", "show", "--config", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "xoxb-secret") || strings.Contains(out, "ghp_secret") {
		t.Errorf("tokens leaked in output:\n%s", out)
	}
	if !strings.Contains(out, "channel: builds_test") {
		t.Errorf("expected default channel in output:\n%s", out)
	}
}

// ---- handle ----

const stageEvent = `{
  "source": "aws.codepipeline",
  "detail-type": "CodePipeline Stage Execution State Change",
  "detail": {"pipeline": "api", "execution-id": "exec-1", "stage": "Build", "state": "STARTED"}
}`

func TestHandle_DryRun(t *testing.T) {
	path := writeFile(t, "event.json", stageEvent)

	out, err := executeCommand("handle", "--dry-run", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "route: pipeline") {
		t.Errorf("output = %q, want route: pipeline", out)
	}
}

func TestHandle_RejectsInvalidEvent(t *testing.T) {
	path := writeFile(t, "event.json", `{"source": "aws.codepipeline", "detail-type": "x", "detail": {}}`)

	_, err := executeCommand("handle", "--dry-run", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

// ---- correlation ----

func TestCorrelationPutGet(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "correlation.db")

	if out, err := executeCommand("correlation", "put", "d-1", "--dsn", dsn, "--pipeline-id", "exec-1", "--task-def", ""); err != nil {
		t.Fatalf("put pipeline id: %v\n%s", err, out)
	}
	if out, err := executeCommand("correlation", "put", "d-1", "--dsn", dsn, "--pipeline-id", "", "--task-def", "api:42"); err != nil {
		t.Fatalf("put task def: %v\n%s", err, out)
	}

	out, err := executeCommand("correlation", "get", "d-1", "--dsn", dsn)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, `"pipeline_id": "exec-1"`) || !strings.Contains(out, `"task_def": "api:42"`) {
		t.Errorf("record = %s", out)
	}
}

func TestCorrelationGet_NotFound(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "correlation.db")
	if _, err := executeCommand("correlation", "get", "missing", "--dsn", dsn); err == nil {
		t.Error("expected not found error")
	}
}

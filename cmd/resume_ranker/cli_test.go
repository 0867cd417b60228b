package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// getBinaryPath returns the path to the resume_ranker binary for testing
func getBinaryPath(t *testing.T) string {
	binaryName := "resume_ranker"
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", binaryName)
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/resume_ranker ./cmd/resume_ranker'", binaryPath)
	}

	return binaryPath
}

func TestCLI_MissingFlags(t *testing.T) {
	binaryPath := getBinaryPath(t)

	tests := []struct {
		name        string
		args        []string
		errorString string
	}{
		{
			name:        "rank without --records",
			args:        []string{"rank", "--query", "python"},
			errorString: "required flag(s) \"records\" not set",
		},
		{
			name:        "run without query source",
			args:        []string{"run", "--records", "../../internal/ingestion/testdata/resumes.json"},
			errorString: "one of --query, --query-file or --job-url must be provided",
		},
		{
			name:        "evaluate without --reference",
			args:        []string{"evaluate", "--ranking", "ranking.json"},
			errorString: "required flag(s) \"reference\" not set",
		},
		{
			name:        "runs show with bad id",
			args:        []string{"runs", "show", "not-a-uuid"},
			errorString: "invalid run ID format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command(binaryPath, tt.args...)
			output, err := cmd.CombinedOutput()

			assert.Error(t, err)
			assert.Contains(t, string(output), tt.errorString)
		})
	}
}

func TestCLI_RankSample(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "rank",
		"--records", "../../internal/ingestion/testdata/resumes.json",
		"--query", "python backend engineer",
	)
	output, err := cmd.CombinedOutput()

	assert.NoError(t, err, "command should succeed: %s", output)
	assert.Contains(t, string(output), "BM25 RANKING")
}

package eval

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ResolveTrecEval returns the full path of the trec_eval binary named by
// path, looking it up in PATH when it has no directory component.
func ResolveTrecEval(path string) (string, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("locating trec_eval %q: %w", path, err)
	}
	return resolved, nil
}

// RunTrecEval runs the external trec_eval binary on one run file and returns
// its standard output.
func RunTrecEval(ctx context.Context, binary, qrelsPath, runPath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, qrelsPath, runPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("running %s: %w: %s", binary, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}

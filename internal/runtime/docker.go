package runtime

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DockerRuntime shells out to the docker CLI.
type DockerRuntime struct {
	// Binary allows overriding the docker executable, mostly for tests.
	Binary string
}

// NewDocker returns a DockerRuntime using the docker binary on PATH.
func NewDocker() *DockerRuntime {
	return &DockerRuntime{Binary: "docker"}
}

// IsRunning reports container liveness. An unknown container is simply not
// running; docker errors for missing names are not propagated.
func (d *DockerRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, d.Binary, "inspect", "-f", "{{.State.Running}}", name)
	output, err := cmd.Output()
	if err != nil {
		// docker inspect exits non-zero for unknown containers.
		return false, nil
	}
	return strings.TrimSpace(string(output)) == "true", nil
}

// Launch starts a detached worker container. The container clones the
// repository, checks out the branch, and runs the agent against the prompt;
// its stdout/stderr stream to cfg.LogPath via docker's log driver.
func (d *DockerRuntime) Launch(ctx context.Context, cfg RunConfig) error {
	args := []string{"run", "-d", "--rm=false", "--name", cfg.Name}
	args = append(args,
		"-e", "KILN_REPO="+cfg.Repo,
		"-e", "KILN_BRANCH="+cfg.Branch,
		"-e", "KILN_PROMPT="+cfg.Prompt,
	)
	for k, v := range cfg.Env {
		args = append(args, "-e", k+"="+v)
	}
	if cfg.Timeout > 0 {
		args = append(args, "-e", fmt.Sprintf("KILN_TIMEOUT_S=%d", int(cfg.Timeout.Seconds())))
	}
	if cfg.LogPath != "" {
		args = append(args, "--log-driver", "json-file", "--label", "kiln.log_path="+cfg.LogPath)
	}
	args = append(args, cfg.Image)

	if output, err := exec.CommandContext(ctx, d.Binary, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("launch container %s: %w: %s", cfg.Name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExitCode probes the exit code of a stopped container. Unknown containers
// (cleaned up out of band) report -1 with no error.
func (d *DockerRuntime) ExitCode(ctx context.Context, name string) (int, error) {
	cmd := exec.CommandContext(ctx, d.Binary, "inspect", "-f", "{{.State.ExitCode}}", name)
	output, err := cmd.Output()
	if err != nil {
		return -1, nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return -1, nil
	}
	return code, nil
}

// Available reports whether the docker daemon answers. Used by preflight.
func (d *DockerRuntime) Available(ctx context.Context) error {
	if output, err := exec.CommandContext(ctx, d.Binary, "info", "--format", "{{.ServerVersion}}").CombinedOutput(); err != nil {
		return fmt.Errorf("docker daemon unavailable: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

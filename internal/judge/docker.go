package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/terra-clan/screening-engine/internal/config"
	"github.com/terra-clan/screening-engine/internal/languages"
	"github.com/terra-clan/screening-engine/internal/models"
)

const managedLabel = "screening.managed"

// LanguageResolver maps judge language ids to runnable languages
type LanguageResolver interface {
	ByJudgeID(id int) *models.Language
}

// Docker implements Judge by running each submission in a throwaway
// container. The container ID is the submission token.
type Docker struct {
	docker *client.Client
	config config.DockerConfig
	langs  LanguageResolver
	memory int64
}

// NewDocker creates a docker-backed judge
func NewDocker(cfg config.DockerConfig, langs LanguageResolver) (*Docker, error) {
	var memory int64
	if cfg.MemoryLimit != "" {
		m, err := units.RAMInBytes(cfg.MemoryLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid memory limit %q: %w", cfg.MemoryLimit, err)
		}
		memory = m
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 8 * time.Second
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(cfg.Host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Docker{
		docker: cli,
		config: cfg,
		langs:  langs,
		memory: memory,
	}, nil
}

// Ping checks docker connectivity
func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close releases the docker client
func (d *Docker) Close() error {
	return d.docker.Close()
}

// Submit starts a container for the base64 encoded source and stdin
func (d *Docker) Submit(ctx context.Context, source, stdin string, languageID int) (string, error) {
	lang := d.langs.ByJudgeID(languageID)
	if lang == nil || lang.Image == "" || lang.Command == "" {
		return "", &HTTPError{StatusCode: http.StatusUnprocessableEntity, Message: fmt.Sprintf("language %d is not available", languageID)}
	}

	if err := d.pullImage(ctx, lang.Image); err != nil {
		return "", fmt.Errorf("failed to pull image: %w", err)
	}

	file := languages.SourceFile(lang)
	script := fmt.Sprintf(
		`echo "$SOURCE_B64" | base64 -d > %s && echo "$STDIN_B64" | base64 -d > .stdin && (%s) < .stdin`,
		file, lang.Command,
	)

	pids := int64(64)
	containerConfig := &container.Config{
		Image:           lang.Image,
		Cmd:             []string{"sh", "-c", script},
		WorkingDir:      "/tmp",
		NetworkDisabled: true,
		Env: []string{
			"SOURCE_B64=" + source,
			"STDIN_B64=" + stdin,
		},
		Labels: map[string]string{
			managedLabel:         "true",
			"screening.language": lang.Value,
		},
	}

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    d.memory,
			PidsLimit: &pids,
		},
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	name := fmt.Sprintf("judge-%s", uuid.New().String()[:12])
	resp, err := d.docker.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.remove(resp.ID)
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	slog.Debug("judge container started", "container", resp.ID, "language", lang.Value)
	return resp.ID, nil
}

// Poll inspects the container behind a token
func (d *Docker) Poll(ctx context.Context, token string) (*Submission, error) {
	info, err := d.docker.ContainerInspect(ctx, token)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, &HTTPError{StatusCode: http.StatusNotFound, Message: "submission not found"}
		}
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	sub, kill, done := verdict(token, info.State, d.config.RunTimeout, time.Now())
	if kill {
		if err := d.docker.ContainerKill(ctx, token, "KILL"); err != nil {
			slog.Warn("failed to kill judge container", "error", err, "container", token)
		}
	}
	if done {
		d.collect(ctx, token, sub)
	}
	return sub, nil
}

// Release removes the container behind a token that will not be polled
// again
func (d *Docker) Release(ctx context.Context, token string) error {
	err := d.docker.ContainerRemove(ctx, token, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Sweep removes judge containers left behind by runs that never
// finished. It returns the number of containers removed.
func (d *Docker) Sweep(ctx context.Context) int {
	list, err := d.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", managedLabel+"=true")),
	})
	if err != nil {
		slog.Warn("failed to list judge containers", "error", err)
		return 0
	}

	removed := 0
	for _, id := range stale(list, time.Now(), d.config.RunTimeout+time.Minute) {
		if err := d.Release(ctx, id); err != nil {
			slog.Warn("failed to remove stale judge container", "error", err, "container", id)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("removed stale judge containers", "count", removed)
	}
	return removed
}

// verdict maps a container state to a submission. kill reports a run past
// its time limit; done reports that the output can be collected.
func verdict(token string, state *types.ContainerState, limit time.Duration, now time.Time) (*Submission, bool, bool) {
	sub := &Submission{Token: token}
	if state == nil {
		sub.Status = Status{ID: StatusProcessing, Description: "Processing"}
		return sub, false, false
	}

	if state.Running || state.Status == "created" {
		started, _ := time.Parse(time.RFC3339Nano, state.StartedAt)
		if state.Running && !started.IsZero() && now.Sub(started) > limit {
			sub.Status = Status{ID: StatusTimeLimitExceeded, Description: "Time Limit Exceeded"}
			sub.Time = formatSeconds(limit)
			return sub, true, true
		}
		sub.Status = Status{ID: StatusProcessing, Description: "Processing"}
		return sub, false, false
	}

	switch {
	case state.OOMKilled:
		sub.Status = Status{ID: StatusRuntimeOther, Description: "Runtime Error (Out of memory)"}
	case state.ExitCode == 0:
		sub.Status = Status{ID: StatusAccepted, Description: "Accepted"}
	default:
		sub.Status = Status{ID: StatusRuntimeNZEC, Description: fmt.Sprintf("Runtime Error (exit code %d)", state.ExitCode)}
	}

	started, errStart := time.Parse(time.RFC3339Nano, state.StartedAt)
	finished, errFinish := time.Parse(time.RFC3339Nano, state.FinishedAt)
	if errStart == nil && errFinish == nil && finished.After(started) {
		sub.Time = formatSeconds(finished.Sub(started))
	}
	return sub, false, true
}

// stale returns the ids of containers created more than maxAge before now
func stale(list []types.Container, now time.Time, maxAge time.Duration) []string {
	var ids []string
	for _, c := range list {
		if now.Sub(time.Unix(c.Created, 0)) > maxAge {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// collect copies container output into the submission and removes the
// container
func (d *Docker) collect(ctx context.Context, id string, sub *Submission) {
	defer d.remove(id)

	logs, err := d.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		slog.Warn("failed to read judge logs", "error", err, "container", id)
		return
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil && err != io.EOF {
		slog.Warn("failed to demultiplex judge logs", "error", err, "container", id)
	}

	sub.Stdout = encode(stdout.Bytes())
	sub.Stderr = encode(stderr.Bytes())
}

func (d *Docker) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("failed to remove judge container", "error", err, "container", id)
	}
}

// pullImage pulls a Docker image if not present
func (d *Docker) pullImage(ctx context.Context, imageName string) error {
	if d.config.PullPolicy == "never" {
		return nil
	}

	_, _, err := d.docker.ImageInspectWithRaw(ctx, imageName)
	if err == nil && d.config.PullPolicy == "if-not-present" {
		return nil
	}

	slog.Info("pulling image", "image", imageName)
	out, err := d.docker.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer out.Close()

	_, _ = io.Copy(io.Discard, out)
	return nil
}

func encode(data []byte) *string {
	if len(data) == 0 {
		return nil
	}
	s := base64.StdEncoding.EncodeToString(data)
	return &s
}

func formatSeconds(d time.Duration) *string {
	s := fmt.Sprintf("%.3f", d.Seconds())
	return &s
}

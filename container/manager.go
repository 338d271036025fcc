// Package container builds images for the docker_* commands.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// ErrDockerUnavailable is returned when no Docker daemon could be reached.
var ErrDockerUnavailable = errors.New("docker not available")

// LabelManagedBy marks images built by devassist.
const LabelManagedBy = "devassist.managed-by"

// Manager talks to the Docker daemon.
type Manager struct {
	client    *client.Client
	labels    map[string]string
	output    io.Writer
	mu        sync.Mutex
	available bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLabels adds labels to every built image.
func WithLabels(labels map[string]string) ManagerOption {
	return func(m *Manager) {
		for k, v := range labels {
			m.labels[k] = v
		}
	}
}

// WithBuildOutput copies the build stream text to w.
func WithBuildOutput(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.output = w
	}
}

// NewManager connects to Docker. If Docker is unavailable it returns a
// Manager whose IsAvailable reports false and whose Build fails with
// ErrDockerUnavailable.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		labels: map[string]string{LabelManagedBy: "devassist"},
	}
	for _, opt := range opts {
		opt(m)
	}

	cli, err := createDockerClient()
	if err != nil {
		return m
	}
	m.client = cli
	m.available = true
	return m
}

// createDockerClient tries the environment settings first, then the usual
// socket locations of Docker Desktop, Linux and Colima.
func createDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		if ping(cli) == nil {
			return cli, nil
		}
		cli.Close()
	}

	home := os.Getenv("HOME")
	socketPaths := []string{
		"unix://" + home + "/.docker/run/docker.sock",
		"unix:///var/run/docker.sock",
		"unix://" + home + "/.colima/docker.sock",
	}
	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}
		if ping(cli) == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, ErrDockerUnavailable
}

func ping(cli *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Ping(ctx)
	return err
}

// IsAvailable returns whether Docker is available.
func (m *Manager) IsAvailable() bool {
	return m.available
}

// Build builds the Dockerfile in dir and returns the image ID. Intermediate
// containers are removed.
func (m *Manager) Build(ctx context.Context, dir, tag string) (string, error) {
	if !m.available {
		return "", ErrDockerUnavailable
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("build context %q is not a directory", dir)
	}

	buildCtx, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to archive build context: %w", err)
	}
	defer buildCtx.Close()

	opts := types.ImageBuildOptions{
		Remove:      true,
		ForceRemove: true,
		Labels:      m.labels,
	}
	if tag != "" {
		opts.Tags = []string{tag}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.client.ImageBuild(ctx, buildCtx, opts)
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	return parseBuildOutput(resp.Body, m.output)
}

// ImageExists reports whether ref names a local image.
func (m *Manager) ImageExists(ctx context.Context, ref string) (bool, error) {
	if !m.available {
		return false, ErrDockerUnavailable
	}
	_, _, err := m.client.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, err
}

var builtRe = regexp.MustCompile(`Successfully built ([0-9a-f]+)`)

// parseBuildOutput reads a build message stream and returns the image ID,
// taken from the aux record or from the "Successfully built" line.
func parseBuildOutput(r io.Reader, out io.Writer) (string, error) {
	dec := json.NewDecoder(r)
	var id string
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("failed to read build output: %w", err)
		}
		if msg.Error != nil {
			return "", fmt.Errorf("build failed: %s", msg.Error.Message)
		}
		if msg.ErrorMessage != "" {
			return "", fmt.Errorf("build failed: %s", msg.ErrorMessage)
		}
		if out != nil && msg.Stream != "" {
			io.WriteString(out, msg.Stream)
		}
		if m := builtRe.FindStringSubmatch(msg.Stream); m != nil {
			id = m[1]
		}
		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if json.Unmarshal(*msg.Aux, &aux) == nil && aux.ID != "" {
				id = strings.TrimPrefix(aux.ID, "sha256:")
			}
		}
	}
	if id == "" {
		return "", errors.New("build finished without an image id")
	}
	return id, nil
}

// Close closes the Docker client.
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

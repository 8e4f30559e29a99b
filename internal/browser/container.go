package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	containerPort    = "3000/tcp"
	containerDataDir = "/data"
)

// ContainerInstance is a running browser container with the profile mounted
type ContainerInstance struct {
	ContainerID string
	ConnectURL  string
	Port        string
	ProfileDir  string
}

// ContainerLauncher runs Chromium in a browserless container so the service can
// operate on hosts without a local browser.
type ContainerLauncher struct {
	client *client.Client
	image  string
	logger *zap.Logger
}

// NewContainerLauncher creates a new docker launcher for browser containers
func NewContainerLauncher(imageRef string, logger *zap.Logger) (*ContainerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &ContainerLauncher{
		client: cli,
		image:  imageRef,
		logger: logger.With(zap.String("component", "container")),
	}, nil
}

// Launch starts a container with profileDir bind-mounted as the browser's user data dir
func (l *ContainerLauncher) Launch(ctx context.Context, profileDir string) (*ContainerInstance, error) {
	if err := l.EnsureImage(ctx); err != nil {
		return nil, err
	}

	containerConfig := &container.Config{
		Image: l.image,
		Labels: map[string]string{
			"managed-by": "invoice-scraper",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: profileDir,
				Target: containerDataDir,
			},
		},
	}

	name := fmt.Sprintf("invoice-scraper-%s", uuid.NewString()[:8])
	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = l.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[containerPort]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container %s exposes no port for %s", resp.ID[:12], containerPort)
	}
	port := bindings[0].HostPort

	if err := l.waitForReady(ctx, port); err != nil {
		_ = l.Stop(context.Background(), resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	l.logger.Info("browser container started",
		zap.String("container_id", resp.ID[:12]),
		zap.String("port", port))

	return &ContainerInstance{
		ContainerID: resp.ID,
		ConnectURL:  fmt.Sprintf("ws://127.0.0.1:%s?--user-data-dir=%s", port, containerDataDir),
		Port:        port,
		ProfileDir:  profileDir,
	}, nil
}

func (l *ContainerLauncher) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (l *ContainerLauncher) IsHealthy(ctx context.Context, containerID string) bool {
	inspect, err := l.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// EnsureImage pulls the browser image unless it is already present locally
func (l *ContainerLauncher) EnsureImage(ctx context.Context) error {
	images, err := l.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == l.image {
				return nil
			}
		}
	}

	l.logger.Info("pulling browser image", zap.String("image", l.image))
	reader, err := l.client.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (l *ContainerLauncher) Close() error {
	return l.client.Close()
}

// waitForReady polls /json/version until the browser answers
func (l *ContainerLauncher) waitForReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/json/version", port)
	maxRetries := 40

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}

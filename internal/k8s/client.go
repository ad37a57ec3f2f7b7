// Package k8s reads RBAC objects and pods from a live cluster.
package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps Kubernetes client-go
type Client struct {
	Clientset kubernetes.Interface
	Context   string
	// Timeout bounds a whole snapshot collection; 0 means the request context only.
	Timeout time.Duration
	// limiter rate-limits outbound list calls. Nil = no limit.
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewClient creates a client from a kubeconfig path and context. With no path it
// tries in-cluster config first, then ~/.kube/config.
func NewClient(kubeconfigPath, context string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			homeDir, _ := os.UserHomeDir()
			if homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}

	if config == nil {
		config, err = buildConfigFromFlags(context, kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return &Client{Clientset: clientset, Context: context, breaker: NewCircuitBreaker(context)}, nil
}

// NewClientFromClientset wraps an existing clientset, e.g. a fake one in tests.
func NewClientFromClientset(cs kubernetes.Interface) *Client {
	return &Client{Clientset: cs, breaker: NewCircuitBreaker("")}
}

// Breaker returns the circuit breaker guarding snapshot collection.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// SetTimeout sets the timeout for a snapshot collection.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter sets a token-bucket rate limiter for outbound list calls.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withTimeout returns ctx with timeout applied if c.Timeout > 0; otherwise returns ctx and a no-op cancel.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

func buildConfigFromFlags(context, kubeconfigPath string) (*rest.Config, error) {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
		&clientcmd.ConfigOverrides{
			CurrentContext: context,
		}).ClientConfig()
}

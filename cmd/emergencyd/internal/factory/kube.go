package factory

import (
	"errors"
	"fmt"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/config"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// kubeRESTConfig resolves API server access for the ConfigMap catalogue.
// Inside a pod without an explicit KUBECONFIG the service account is used;
// otherwise kubeconfig loading follows kubectl's rules (KUBECONFIG, then
// ~/.kube/config) with in-cluster as the last resort.
func kubeRESTConfig(cfg *config.Config) (*rest.Config, error) {
	log := logger.With("runtime", cfg.Runtime, "kubeconfig", cfg.KubeConfigPath, "context", cfg.KubeContext)

	if cfg.Runtime == config.RuntimeKubernetes && cfg.KubeConfigPath == "" {
		rc, err := rest.InClusterConfig()
		if err == nil {
			log.Info("Using in-cluster Kubernetes configuration")
			return rc, nil
		}
		log.Warn("In-cluster configuration unavailable, trying kubeconfig", "error", err)
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = cfg.KubeConfigPath
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.KubeContext}

	rc, kubeErr := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if kubeErr == nil {
		log.Info("Using kubeconfig", "host", rc.Host)
		return rc, nil
	}

	rc, clusterErr := rest.InClusterConfig()
	if clusterErr != nil {
		return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w",
			errors.Join(kubeErr, clusterErr))
	}
	log.Warn("Failed to load kubeconfig, using in-cluster configuration", "error", kubeErr)
	return rc, nil
}

package factory

import (
	"context"
	"fmt"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue/file"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue/kubernetes"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/config"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"

	k8s "k8s.io/client-go/kubernetes"
)

// CatalogueFactory loads the service catalogue from the configured source
type CatalogueFactory struct {
	cfg *config.Config

	// NewClientset builds the kubernetes client. Tests replace it with a fake.
	NewClientset func() (k8s.Interface, error)
}

// NewCatalogueFactory creates a new catalogue factory
func NewCatalogueFactory(cfg *config.Config) *CatalogueFactory {
	f := &CatalogueFactory{cfg: cfg}
	f.NewClientset = f.kubernetesClientset
	return f
}

// Create loads and validates the catalogue
func (f *CatalogueFactory) Create(ctx context.Context) (*catalogue.Catalogue, error) {
	switch f.cfg.CatalogueSource {
	case config.CatalogueBuiltin:
		logger.Info("Using built-in service catalogue", "services", len(catalogue.Defaults))
		return catalogue.Load(ctx, catalogue.NewStatic())
	case config.CatalogueFile:
		logger.Info("Loading service catalogue from file", "path", f.cfg.CatalogueFile)
		return catalogue.Load(ctx, file.NewSource(f.cfg.CatalogueFile))
	case config.CatalogueKubernetes:
		return f.createFromConfigMap(ctx)
	default:
		return nil, fmt.Errorf("unknown catalogue source: %s", f.cfg.CatalogueSource)
	}
}

func (f *CatalogueFactory) createFromConfigMap(ctx context.Context) (*catalogue.Catalogue, error) {
	logger.Info("Loading service catalogue from ConfigMap",
		"namespace", f.cfg.Namespace,
		"configmap", f.cfg.CatalogueConfigMap)

	clientset, err := f.NewClientset()
	if err != nil {
		return nil, err
	}
	source := kubernetes.NewConfigMapSource(clientset, f.cfg.Namespace, f.cfg.CatalogueConfigMap)

	entries, err := source.Load(ctx)
	if err == nil {
		return catalogue.New(entries)
	}
	if !kubernetes.IsNotFound(err) || !f.cfg.CatalogueAutoCreate {
		return nil, fmt.Errorf("failed to load catalogue: %w", err)
	}

	logger.Info("Catalogue ConfigMap not found. Seeding it with the built-in catalogue...")
	created, err := source.Seed(ctx, catalogue.Defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to seed catalogue: %w", err)
	}
	if !created {
		logger.Info("Catalogue ConfigMap was created by another instance, loading it")
	}
	return catalogue.Load(ctx, source)
}

func (f *CatalogueFactory) kubernetesClientset() (k8s.Interface, error) {
	restConfig, err := kubeRESTConfig(f.cfg)
	if err != nil {
		return nil, err
	}
	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}

package kubernetes

import (
	"context"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// DataKey is the ConfigMap key holding the YAML catalogue document.
// Service names may contain spaces, which ConfigMap keys cannot, so the whole
// catalogue lives under one key.
const DataKey = "catalogue.yaml"

// ConfigMapSource reads the catalogue from a ConfigMap once at startup.
type ConfigMapSource struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

func NewConfigMapSource(client kubernetes.Interface, namespace, name string) *ConfigMapSource {
	return &ConfigMapSource{
		client:    client,
		namespace: namespace,
		name:      name,
	}
}

func (s *ConfigMapSource) Load(ctx context.Context) ([]core.ServiceEntry, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get configmap %s/%s: %w", s.namespace, s.name, err)
	}

	if doc, ok := cm.Data[DataKey]; ok {
		return catalogue.Parse([]byte(doc))
	}
	if doc, ok := cm.BinaryData[DataKey]; ok {
		return catalogue.Parse(doc)
	}
	return nil, fmt.Errorf("configmap %s/%s missing key %s", s.namespace, s.name, DataKey)
}

// Store writes entries to the ConfigMap, creating it or replacing its contents.
func (s *ConfigMapSource) Store(ctx context.Context, entries []core.ServiceEntry) error {
	cm, err := s.configMap(entries)
	if err != nil {
		return err
	}
	_, err = s.client.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create configmap %s/%s: %w", s.namespace, s.name, err)
	}
	if _, err := s.client.CoreV1().ConfigMaps(s.namespace).Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update configmap %s/%s: %w", s.namespace, s.name, err)
	}
	return nil
}

// Seed creates the ConfigMap from entries only if it does not exist. An
// existing ConfigMap is never modified; created reports whether this call made it.
func (s *ConfigMapSource) Seed(ctx context.Context, entries []core.ServiceEntry) (created bool, err error) {
	cm, err := s.configMap(entries)
	if err != nil {
		return false, err
	}
	_, err = s.client.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{})
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsAlreadyExists(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to create configmap %s/%s: %w", s.namespace, s.name, err)
	}
}

func (s *ConfigMapSource) configMap(entries []core.ServiceEntry) (*corev1.ConfigMap, error) {
	data, err := yaml.Marshal(catalogue.Document{Services: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalogue: %w", err)
	}
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.name,
			Namespace: s.namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "emergencyd",
			},
		},
		Data: map[string]string{DataKey: string(data)},
	}, nil
}

// IsNotFound reports whether err means the ConfigMap does not exist.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

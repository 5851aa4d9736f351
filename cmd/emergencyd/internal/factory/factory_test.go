package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue/kubernetes"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/config"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		Runtime:                config.RuntimeVM,
		Namespace:              "emergency",
		BindAddress:            "127.0.0.1",
		ServerPort:             0,
		DiscoveryPort:          0,
		AdvertisedPort:         10840,
		MaxClients:             4,
		ListenBacklog:          16,
		ReadBufferSize:         1024,
		Framing:                "raw",
		CloseClientsOnShutdown: true,
		AuditLogFile:           filepath.Join(t.TempDir(), "client_logs.csv"),
		CatalogueSource:        config.CatalogueBuiltin,
	}
}

type discardSink struct{}

func (discardSink) Append(ctx context.Context, rec core.AuditRecord) error { return nil }

func withFakeClient(f *CatalogueFactory, client k8s.Interface) {
	f.NewClientset = func() (k8s.Interface, error) { return client, nil }
}

func TestCatalogueFactory_Builtin(t *testing.T) {
	cat, err := NewCatalogueFactory(baseConfig(t)).Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(catalogue.Defaults), cat.Len())
}

func TestCatalogueFactory_File(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CatalogueSource = config.CatalogueFile
	cfg.CatalogueFile = filepath.Join(t.TempDir(), "catalogue.yaml")
	require.NoError(t, os.WriteFile(cfg.CatalogueFile, []byte(`
services:
  - name: Coast Guard
    response: "Coast Guard: 1554"
`), 0o644))

	cat, err := NewCatalogueFactory(cfg).Create(context.Background())
	require.NoError(t, err)
	resp, err := cat.Lookup("Coast Guard")
	require.NoError(t, err)
	assert.Equal(t, "Coast Guard: 1554", resp)
}

func TestCatalogueFactory_ConfigMap(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CatalogueSource = config.CatalogueKubernetes
	cfg.CatalogueConfigMap = "emergency-catalogue"

	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "emergency-catalogue", Namespace: "emergency"},
		Data: map[string]string{
			kubernetes.DataKey: "services:\n  - name: Police\n    response: \"Police: 112\"\n",
		},
	})
	f := NewCatalogueFactory(cfg)
	withFakeClient(f, client)

	cat, err := f.Create(context.Background())
	require.NoError(t, err)
	resp, err := cat.Lookup("Police")
	require.NoError(t, err)
	assert.Equal(t, "Police: 112", resp)
}

func TestCatalogueFactory_ConfigMapMissing(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CatalogueSource = config.CatalogueKubernetes
	cfg.CatalogueConfigMap = "emergency-catalogue"

	t.Run("Without auto-create", func(t *testing.T) {
		f := NewCatalogueFactory(cfg)
		withFakeClient(f, fake.NewSimpleClientset())

		_, err := f.Create(context.Background())
		require.Error(t, err)
		assert.True(t, kubernetes.IsNotFound(err))
	})

	t.Run("With auto-create", func(t *testing.T) {
		cfg := *cfg
		cfg.CatalogueAutoCreate = true
		client := fake.NewSimpleClientset()
		f := NewCatalogueFactory(&cfg)
		withFakeClient(f, client)

		cat, err := f.Create(context.Background())
		require.NoError(t, err)
		assert.Equal(t, len(catalogue.Defaults), cat.Len())

		cm, err := client.CoreV1().ConfigMaps("emergency").Get(context.Background(), "emergency-catalogue", metav1.GetOptions{})
		require.NoError(t, err)
		assert.Contains(t, cm.Data[kubernetes.DataKey], "Blood Bank: 1910")
	})
}

func TestCatalogueFactory_SeedingKeepsConcurrentCreator(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CatalogueSource = config.CatalogueKubernetes
	cfg.CatalogueConfigMap = "emergency-catalogue"
	cfg.CatalogueAutoCreate = true

	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "emergency-catalogue", Namespace: "emergency"},
		Data: map[string]string{
			kubernetes.DataKey: "services:\n  - name: Police\n    response: \"Police: 112\"\n",
		},
	})
	// Another replica creates the ConfigMap between our first Get and our Create.
	gets := 0
	client.PrependReactor("get", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		gets++
		if gets == 1 {
			return true, nil, apierrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, "emergency-catalogue")
		}
		return false, nil, nil
	})

	f := NewCatalogueFactory(cfg)
	withFakeClient(f, client)

	cat, err := f.Create(context.Background())
	require.NoError(t, err)
	resp, err := cat.Lookup("Police")
	require.NoError(t, err)
	assert.Equal(t, "Police: 112", resp)
	assert.Equal(t, 1, cat.Len())
}

func TestAuditFactory_FileOnly(t *testing.T) {
	cfg := baseConfig(t)

	sink, closer, err := NewAuditFactory(cfg).Create(context.Background())
	require.NoError(t, err)
	defer closer.Close()

	require.NoError(t, sink.Append(context.Background(), core.AuditRecord{IP: "10.0.0.7", Port: 51000, Service: "Fire"}))

	data, err := os.ReadFile(cfg.AuditLogFile)
	require.NoError(t, err)
	assert.Equal(t, "Client IP,Port Number,Service Taken\n10.0.0.7,51000,Fire\n", string(data))
}

func TestAuditFactory_BadRedisURL(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AuditRedisURL = "not-a-url"

	_, _, err := NewAuditFactory(cfg).Create(context.Background())
	assert.ErrorContains(t, err, "redis")
}

func TestServerFactory(t *testing.T) {
	cfg := baseConfig(t)
	f := NewServerFactory(cfg, nil)

	cat, err := catalogue.New(catalogue.Defaults)
	require.NoError(t, err)

	handler, err := f.CreateHandler(cat, discardSink{})
	require.NoError(t, err)
	assert.Equal(t, dispatch.FramingRaw, handler.Framing)

	srv, err := f.CreateServer(handler)
	require.NoError(t, err)
	defer srv.Close()
	assert.NotZero(t, srv.Port())

	r, err := f.CreateResponder()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, r.Run(ctx))

	cfg.Framing = "json"
	_, err = f.CreateHandler(cat, discardSink{})
	assert.Error(t, err)
}

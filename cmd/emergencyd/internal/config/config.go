package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// RuntimeEnvironment represents the execution environment
type RuntimeEnvironment string

const (
	RuntimeKubernetes RuntimeEnvironment = "kubernetes"
	RuntimeContainer  RuntimeEnvironment = "container"
	RuntimeVM         RuntimeEnvironment = "vm"
)

// CatalogueSource selects where the service catalogue is loaded from
type CatalogueSource string

const (
	CatalogueBuiltin    CatalogueSource = "builtin"
	CatalogueFile       CatalogueSource = "file"
	CatalogueKubernetes CatalogueSource = "kubernetes"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug     bool
	LogFormat string

	// Runtime
	Runtime   RuntimeEnvironment
	Namespace string // Only for the kubernetes catalogue

	// Server
	BindAddress            string
	ServerPort             int
	DiscoveryPort          int
	AdvertisedPort         int
	DiscoveryToken         string
	MaxClients             int
	ListenBacklog          int
	ReadBufferSize         int
	Framing                string
	CloseClientsOnShutdown bool
	HealthServerPort       string

	// Audit
	AuditLogFile     string
	AuditRedisURL    string
	AuditRedisStream string
	AuditRedisMaxLen int

	// Catalogue
	CatalogueSource     CatalogueSource
	CatalogueFile       string
	CatalogueConfigMap  string
	CatalogueAutoCreate bool // Seed the ConfigMap with the built-in catalogue if it is missing
	KubeConfigPath      string
	KubeContext         string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Core
		Debug:     getEnvBool("DEBUG", false),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		// Runtime - Auto-detect or explicit
		Runtime:   determineRuntime(),
		Namespace: determineNamespace(),

		// Server
		BindAddress:            getEnv("BIND_ADDRESS", "0.0.0.0"),
		ServerPort:             getEnvInt("SERVER_PORT", 10840),
		DiscoveryPort:          getEnvInt("DISCOVERY_PORT", 10841),
		DiscoveryToken:         getEnv("DISCOVERY_TOKEN", ""),
		MaxClients:             getEnvInt("MAX_CLIENTS", 100),
		ListenBacklog:          getEnvInt("LISTEN_BACKLOG", 128),
		ReadBufferSize:         getEnvInt("READ_BUFFER_SIZE", 1024),
		Framing:                strings.ToLower(getEnv("FRAMING", "raw")),
		CloseClientsOnShutdown: getEnvBool("CLOSE_CLIENTS_ON_SHUTDOWN", true),
		HealthServerPort:       os.Getenv("HEALTH_SERVER_PORT"),

		// Audit
		AuditLogFile:     getEnv("AUDIT_LOG_FILE", "client_logs.csv"),
		AuditRedisURL:    getEnv("AUDIT_REDIS_URL", ""),
		AuditRedisStream: getEnv("AUDIT_REDIS_STREAM", "emergency:audit"),
		AuditRedisMaxLen: getEnvInt("AUDIT_REDIS_MAXLEN", 10000),

		// Catalogue
		CatalogueSource:     determineCatalogueSource(),
		CatalogueFile:       getEnv("CATALOGUE_FILE", ""),
		CatalogueConfigMap:  getEnv("CATALOGUE_CONFIGMAP", ""),
		CatalogueAutoCreate: getEnvBool("CATALOGUE_AUTO_CREATE", false),
		KubeConfigPath:      getEnv("KUBECONFIG", ""),
		KubeContext:         getEnv("KUBE_CONTEXT", ""),
	}

	// An unset health port keeps the default; an explicitly empty one disables the server.
	if _, set := os.LookupEnv("HEALTH_SERVER_PORT"); !set {
		cfg.HealthServerPort = "8080"
	}
	cfg.AdvertisedPort = getEnvInt("ADVERTISED_PORT", cfg.ServerPort)

	// Validation
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if net.ParseIP(c.BindAddress).To4() == nil {
		return fmt.Errorf("BIND_ADDRESS must be an IPv4 address, got %q", c.BindAddress)
	}

	for name, port := range map[string]int{
		"SERVER_PORT":     c.ServerPort,
		"DISCOVERY_PORT":  c.DiscoveryPort,
		"ADVERTISED_PORT": c.AdvertisedPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if c.AdvertisedPort == 0 {
		return fmt.Errorf("ADVERTISED_PORT must be set when SERVER_PORT is 0")
	}

	if c.MaxClients <= 0 {
		return fmt.Errorf("MAX_CLIENTS must be positive, got %d", c.MaxClients)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("READ_BUFFER_SIZE must be positive, got %d", c.ReadBufferSize)
	}

	validFramings := []string{"raw", "line"}
	if !contains(validFramings, c.Framing) {
		return fmt.Errorf("unsupported FRAMING: %s (supported: %s)",
			c.Framing, strings.Join(validFramings, ", "))
	}

	if c.AuditLogFile == "" {
		return fmt.Errorf("AUDIT_LOG_FILE must not be empty")
	}

	switch c.CatalogueSource {
	case CatalogueBuiltin:
	case CatalogueFile:
		if c.CatalogueFile == "" {
			return fmt.Errorf("CATALOGUE_FILE must be set when using the file catalogue")
		}
	case CatalogueKubernetes:
		if c.CatalogueConfigMap == "" {
			return fmt.Errorf("CATALOGUE_CONFIGMAP must be set when using the kubernetes catalogue")
		}
		if c.Runtime == RuntimeContainer && c.KubeConfigPath == "" {
			return fmt.Errorf("kubernetes catalogue in container runtime requires KUBECONFIG path")
		}
	default:
		return fmt.Errorf("unsupported CATALOGUE_SOURCE: %s", c.CatalogueSource)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func determineRuntime() RuntimeEnvironment {
	// Explicit runtime setting
	if runtime := os.Getenv("RUNTIME"); runtime != "" {
		switch strings.ToLower(runtime) {
		case "kubernetes", "k8s":
			return RuntimeKubernetes
		case "container", "docker":
			return RuntimeContainer
		case "vm", "virtual-machine", "bare-metal":
			return RuntimeVM
		}
	}

	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return RuntimeKubernetes
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return RuntimeContainer
	}
	return RuntimeVM
}

func determineNamespace() string {
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}
	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}
	// Read from service account (in-cluster)
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default"
}

func determineCatalogueSource() CatalogueSource {
	if src := os.Getenv("CATALOGUE_SOURCE"); src != "" {
		switch strings.ToLower(src) {
		case "builtin", "static", "default":
			return CatalogueBuiltin
		case "file", "yaml":
			return CatalogueFile
		case "kubernetes", "k8s", "configmap":
			return CatalogueKubernetes
		default:
			return CatalogueSource(src)
		}
	}

	// Auto-detect based on configuration
	if os.Getenv("CATALOGUE_FILE") != "" {
		return CatalogueFile
	}
	if os.Getenv("CATALOGUE_CONFIGMAP") != "" {
		return CatalogueKubernetes
	}
	return CatalogueBuiltin
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

package discovery

import (
	"context"
	"os"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const serviceAccountPath = "/var/run/secrets/kubernetes.io/serviceaccount"

// systemCriticalServices is the fallback contribution when the cluster
// api is not reachable from inside the cluster
var systemCriticalServices = []string{
	"kube-dns",
	"kube-proxy",
	"kubernetes-dashboard",
	"monitoring-prometheus",
	"monitoring-grafana",
}

// KubernetesConfig enables the cluster-orchestration discovery source
type KubernetesConfig struct {
	Enabled bool `yaml:"enabled"`
	// Namespaces whose services are treated as protected,
	// defaults to kube-system
	Namespaces []string `yaml:"namespaces,omitempty"`
	// ListTimeout in seconds for the service list call, defaults to 5
	ListTimeout int `yaml:"list_timeout,omitempty"`
}

// KubernetesSource marks cluster system services as protected when the
// process runs inside a kubernetes cluster
type KubernetesSource struct {
	config KubernetesConfig

	// overridable for tests
	inCluster func() bool
	newClient func() (kubernetes.Interface, error)
}

func NewKubernetesSource(config KubernetesConfig) *KubernetesSource {
	if len(config.Namespaces) == 0 {
		config.Namespaces = []string{"kube-system"}
	}
	return &KubernetesSource{
		config:    config,
		inCluster: insideCluster,
		newClient: inClusterClient,
	}
}

func (s *KubernetesSource) Name() string {
	return "kubernetes"
}

// ProtectedServices lists the services of the configured namespaces.
// Outside a cluster it contributes nothing, inside a cluster with an
// unreachable api it degrades to the fixed system-critical set.
func (s *KubernetesSource) ProtectedServices() []string {
	if !s.inCluster() {
		return nil
	}

	client, err := s.newClient()
	if err != nil {
		log.Debugf("unable to build in-cluster client, using the static system service set, err: %v", err)
		return systemCriticalServices
	}

	timeout := 5 * time.Second
	if s.config.ListTimeout > 0 {
		timeout = time.Duration(s.config.ListTimeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var services []string
	for _, namespace := range s.config.Namespaces {
		serviceList, err := client.CoreV1().Services(namespace).List(ctx, v1.ListOptions{})
		if err != nil {
			log.Debugf("unable to list services in %v namespace, err: %v", namespace, err)
			continue
		}
		for _, service := range serviceList.Items {
			services = append(services, service.Name)
		}
	}

	if len(services) == 0 {
		return systemCriticalServices
	}
	return services
}

// insideCluster checks the serviceaccount marker and the well-known
// service host variable
func insideCluster() bool {
	if _, err := os.Stat(serviceAccountPath); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func inClusterClient() (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(config)
}

package kube

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Lookup reads cluster objects through the Kubernetes API.
type Lookup struct {
	clientset kubernetes.Interface
}

// NewLookup builds a client from a kubeconfig path. An empty path uses the
// default loading rules ($KUBECONFIG, then ~/.kube/config).
func NewLookup(kubeconfigPath string) (*Lookup, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return &Lookup{clientset: clientset}, nil
}

// NewLookupFromClientset wraps an existing clientset.
func NewLookupFromClientset(clientset kubernetes.Interface) *Lookup {
	return &Lookup{clientset: clientset}
}

// ServiceHostname returns the external address of a LoadBalancer Service.
// ok is false while the cloud load balancer has not been assigned yet.
func (l *Lookup) ServiceHostname(ctx context.Context, namespace, name string) (host string, ok bool, err error) {
	svc, err := l.clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", false, fmt.Errorf("get service %s/%s: %w", namespace, name, err)
	}
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		if ing.Hostname != "" {
			return ing.Hostname, true, nil
		}
		if ing.IP != "" {
			return ing.IP, true, nil
		}
	}
	return "", false, nil
}

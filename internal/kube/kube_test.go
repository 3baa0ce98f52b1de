package kube

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

func TestKubectlCommands(t *testing.T) {
	t.Parallel()

	k := NewKubectl("/work/kubeconfig", "")

	apply := k.Apply([]byte("kind: Namespace\n"))
	assert.Equal(t, "kubectl --kubeconfig /work/kubeconfig apply -f -", apply.String())
	body, err := io.ReadAll(apply.Stdin)
	require.NoError(t, err)
	assert.Equal(t, "kind: Namespace\n", string(body))

	assert.Equal(t, "kubectl --kubeconfig /work/kubeconfig delete -f - --ignore-not-found", k.Delete([]byte("x"), true).String())

	rollout := k.RolloutStatus("app", "web", 5*time.Minute)
	assert.Equal(t, "kubectl --kubeconfig /work/kubeconfig rollout status deployment/web -n app --timeout=5m0s", rollout.String())
	assert.Greater(t, rollout.Timeout, 5*time.Minute)
	assert.Nil(t, rollout.Stdin)

	assert.Equal(t, "kubectl --context prod get deploy,svc,pods -n app", NewKubectl("", "prod").Status("app").String())
}

func TestServiceHostname(t *testing.T) {
	t.Parallel()

	cs := k8sfake.NewSimpleClientset(
		&corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "app"},
			Status: corev1.ServiceStatus{LoadBalancer: corev1.LoadBalancerStatus{
				Ingress: []corev1.LoadBalancerIngress{{Hostname: "abc.elb.amazonaws.com"}},
			}},
		},
		&corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "pending", Namespace: "app"}},
	)
	l := NewLookupFromClientset(cs)
	ctx := context.Background()

	host, ok, err := l.ServiceHostname(ctx, "app", "web")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc.elb.amazonaws.com", host)

	_, ok, err = l.ServiceHostname(ctx, "app", "pending")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = l.ServiceHostname(ctx, "app", "missing")
	assert.ErrorContains(t, err, "get service app/missing")
}

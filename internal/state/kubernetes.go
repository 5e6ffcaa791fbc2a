package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const (
	appLabel        = "app"
	appName         = "datapull"
	kindLabel       = "datapull/kind"
	expiresAnnotate = "datapull/expires"
)

// KubernetesManager implements the Manager interface using Kubernetes
// ConfigMaps, one per run, so that scheduled runs inside a cluster keep their
// history across pods.
type KubernetesManager struct {
	client    kubernetes.Interface
	namespace string
}

// NewKubernetesManager creates a manager from the in-cluster configuration
func NewKubernetesManager(namespace string) (*KubernetesManager, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewKubernetesManagerWithClient(client, namespace), nil
}

// NewKubernetesManagerWithClient creates a manager backed by client
func NewKubernetesManagerWithClient(client kubernetes.Interface, namespace string) *KubernetesManager {
	if namespace == "" {
		namespace = "default"
	}
	return &KubernetesManager{
		client:    client,
		namespace: namespace,
	}
}

func runName(jobID string) string {
	return fmt.Sprintf("datapull-run-%s", jobID)
}

func lockName(key string) string {
	return fmt.Sprintf("datapull-lock-%s", key)
}

// GetState retrieves the state for a run from its ConfigMap
func (k *KubernetesManager) GetState(ctx context.Context, jobID string) (*State, error) {
	cm, err := k.client.CoreV1().ConfigMaps(k.namespace).Get(ctx, runName(jobID), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get ConfigMap: %w", err)
	}
	return decodeState(cm)
}

// CreateState creates the ConfigMap for a new run
func (k *KubernetesManager) CreateState(ctx context.Context, state *State) error {
	if err := validate(state); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name: runName(state.JobID),
			Labels: map[string]string{
				appLabel:  appName,
				kindLabel: "run",
			},
		},
		Data: map[string]string{
			"state": string(data),
		},
	}

	_, err = k.client.CoreV1().ConfigMaps(k.namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("state already exists for job %s", state.JobID)
		}
		return fmt.Errorf("failed to create ConfigMap: %w", err)
	}
	return nil
}

// UpdateState updates the ConfigMap of an existing run
func (k *KubernetesManager) UpdateState(ctx context.Context, state *State) error {
	if err := validate(state); err != nil {
		return err
	}

	cms := k.client.CoreV1().ConfigMaps(k.namespace)
	cm, err := cms.Get(ctx, runName(state.JobID), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, state.JobID)
		}
		return fmt.Errorf("failed to get ConfigMap: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data["state"] = string(data)

	if _, err := cms.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update ConfigMap: %w", err)
	}
	return nil
}

// DeleteState deletes the ConfigMap for a run
func (k *KubernetesManager) DeleteState(ctx context.Context, jobID string) error {
	err := k.client.CoreV1().ConfigMaps(k.namespace).Delete(ctx, runName(jobID), metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return fmt.Errorf("failed to delete ConfigMap: %w", err)
	}
	return nil
}

// ListStates lists the run ConfigMaps in the namespace, oldest first
func (k *KubernetesManager) ListStates(ctx context.Context) ([]*State, error) {
	list, err := k.client.CoreV1().ConfigMaps(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=run", appLabel, appName, kindLabel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ConfigMaps: %w", err)
	}

	var states []*State
	for i := range list.Items {
		state, err := decodeState(&list.Items[i])
		if err != nil {
			continue // Skip invalid states
		}
		states = append(states, state)
	}

	sortStates(states)
	return states, nil
}

// LockState acquires a lock ConfigMap, taking over an expired one
func (k *KubernetesManager) LockState(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	cms := k.client.CoreV1().ConfigMaps(k.namespace)
	now := time.Now()
	lock := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name: lockName(key),
			Labels: map[string]string{
				appLabel:  appName,
				kindLabel: "lock",
			},
			Annotations: map[string]string{
				expiresAnnotate: now.Add(ttl).Format(time.RFC3339Nano),
			},
		},
		Data: map[string]string{
			"locked_at": now.Format(time.RFC3339Nano),
		},
	}

	_, err := cms.Create(ctx, lock, metav1.CreateOptions{})
	if err == nil {
		return true, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return false, fmt.Errorf("failed to create lock: %w", err)
	}

	existing, err := cms.Get(ctx, lockName(key), metav1.GetOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to get lock: %w", err)
	}
	expires, err := time.Parse(time.RFC3339Nano, existing.Annotations[expiresAnnotate])
	if err == nil && expires.After(now) {
		return false, nil
	}

	// Take over the expired lock
	existing.Annotations = lock.Annotations
	existing.Data = lock.Data
	if _, err := cms.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update lock: %w", err)
	}
	return true, nil
}

// UnlockState deletes the lock ConfigMap for key
func (k *KubernetesManager) UnlockState(ctx context.Context, key string) error {
	err := k.client.CoreV1().ConfigMaps(k.namespace).Delete(ctx, lockName(key), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

func decodeState(cm *corev1.ConfigMap) (*State, error) {
	var state State
	if err := json.Unmarshal([]byte(cm.Data["state"]), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

package kubeutil

import (
	"os"
	"path/filepath"

	xe "github.com/opst/mlcommons/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// ConnectToK8s detects a client of the kubernetes cluster.
//
// # It searches kubeconfig from
//
// - `~/.kube/config`
//
// - environmental variable `KUBECONFIG`
//
// - the file found first from the kubeconfigSearchPath
//
// When no files are found from above, it tries to use in-cluster config.
func ConnectToK8s(kubeconfigSearchPath ...string) (kubernetes.Interface, error) {
	config, err := restConfig(kubeconfigSearchPath...)
	if err != nil {
		return nil, xe.WrapWithNote("kubernetes config is not found", err)
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return clientset, nil
}

func isFile(path string) bool {
	s, err := os.Stat(path)
	return err == nil && !s.IsDir()
}

// Kubeconfig returns the path of kubeconfig to be used, or empty when none are found.
func Kubeconfig(kubeconfigSearchPath ...string) string {
	kubeconfig := ""

	// priority 1 (least): ~/.kube/config
	if home := homedir.HomeDir(); home != "" {
		if p := filepath.Join(home, ".kube", "config"); isFile(p) {
			kubeconfig = p
		}
	}

	// priority 2: envvar KUBECONFIG
	if k := os.Getenv("KUBECONFIG"); k != "" && isFile(k) {
		kubeconfig = k
	}

	// priority 3 (most): search path
	for _, sp := range kubeconfigSearchPath {
		if isFile(sp) {
			kubeconfig = sp
			break
		}
	}
	return kubeconfig
}

func restConfig(kubeconfigSearchPath ...string) (*rest.Config, error) {
	kubeconfig := Kubeconfig(kubeconfigSearchPath...)
	if kubeconfig == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

package node

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/node.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

const (
	DefaultClusterName     = "opensearch"
	DefaultTransportPort   = 9300
	DefaultParallelism     = 8
	DefaultTimeout         = 30 * time.Second
	DefaultRefreshInterval = 30 * time.Second
	DefaultServiceName     = "mlcommons"
)

type NodeConfigMarshall struct {
	Cluster        *ClusterConfigMarshall        `yaml:"cluster"`
	Node           *LocalNodeConfigMarshall      `yaml:"node"`
	Discovery      *DiscoveryConfigMarshall      `yaml:"discovery,omitempty"`
	Transport      *TransportConfigMarshall      `yaml:"transport"`
	MultiTenancy   bool                          `yaml:"multiTenancy,omitempty"`
	RemoteMetadata *RemoteMetadataConfigMarshall `yaml:"remoteMetadata,omitempty"`
	Postgres       *PostgresConfigMarshall       `yaml:"postgres,omitempty"`
	Tracing        *TracingConfigMarshall        `yaml:"tracing,omitempty"`
	Guardrail      *GuardrailConfigMarshall      `yaml:"guardrail,omitempty"`
}

var _ Marshalled[*NodeConfig] = &NodeConfigMarshall{}

func (n *NodeConfigMarshall) trySeal(path string) *NodeConfig {
	cluster := n.Cluster
	if cluster == nil {
		cluster = &ClusterConfigMarshall{}
	}
	discovery := n.Discovery
	if discovery == nil {
		discovery = &DiscoveryConfigMarshall{}
	}
	remote := n.RemoteMetadata
	if remote == nil {
		remote = &RemoteMetadataConfigMarshall{}
	}
	pg := n.Postgres
	if pg == nil {
		pg = &PostgresConfigMarshall{}
	}
	tracing := n.Tracing
	if tracing == nil {
		tracing = &TracingConfigMarshall{}
	}
	guardrail := n.Guardrail
	if guardrail == nil {
		guardrail = &GuardrailConfigMarshall{}
	}

	return &NodeConfig{
		cluster:        cluster.trySeal(path + ".cluster"),
		node:           nonnil(n.Node, path+".node").trySeal(path + ".node"),
		discovery:      discovery.trySeal(path + ".discovery"),
		transport:      nonnil(n.Transport, path+".transport").trySeal(path + ".transport"),
		multiTenancy:   n.MultiTenancy,
		remoteMetadata: remote.trySeal(path + ".remoteMetadata"),
		postgres:       pg.trySeal(path + ".postgres"),
		tracing:        tracing.trySeal(path + ".tracing"),
		guardrail:      guardrail.trySeal(path + ".guardrail"),
	}
}

type ClusterConfigMarshall struct {
	Name string `yaml:"name,omitempty"`
}

func (c *ClusterConfigMarshall) trySeal(string) *ClusterConfig {
	name := c.Name
	if name == "" {
		name = DefaultClusterName
	}
	return &ClusterConfig{name: name}
}

var ErrInvalidAddress = errors.New("node: address is invalid")

// Address is a root URL of a node transport.
type Address struct {
	*url.URL
}

func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%w: not absolute: %s", ErrInvalidAddress, raw)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: no hostname: %s", ErrInvalidAddress, raw)
	}
	a.URL = u
	return nil
}

func (a Address) MarshalYAML() (any, error) {
	if a.URL == nil {
		return "", nil
	}
	return a.String(), nil
}

type LocalNodeConfigMarshall struct {
	Id      string   `yaml:"id"`
	Name    string   `yaml:"name,omitempty"`
	Address Address  `yaml:"address"`
	Roles   []string `yaml:"roles,omitempty"`
}

func (n *LocalNodeConfigMarshall) trySeal(path string) *PeerConfig {
	return sealPeer(n.Id, n.Name, n.Address, n.Roles, path)
}

func sealPeer(id, name string, address Address, roles []string, path string) *PeerConfig {
	if name == "" {
		name = id
	}
	if len(roles) == 0 {
		roles = []string{"data"}
	}
	return &PeerConfig{
		id:      required(id, path+".id"),
		name:    name,
		address: nonnil(address.URL, path+".address"),
		roles:   append([]string{}, roles...),
	}
}

type PeerConfigMarshall struct {
	Id      string   `yaml:"id"`
	Name    string   `yaml:"name,omitempty"`
	Address Address  `yaml:"address"`
	Roles   []string `yaml:"roles,omitempty"`
}

func (p *PeerConfigMarshall) trySeal(path string) *PeerConfig {
	return sealPeer(p.Id, p.Name, p.Address, p.Roles, path)
}

type DiscoveryConfigMarshall struct {
	Static     []*PeerConfigMarshall        `yaml:"static,omitempty"`
	Kubernetes *KubernetesDiscoveryMarshall `yaml:"kubernetes,omitempty"`
}

func (d *DiscoveryConfigMarshall) trySeal(path string) *DiscoveryConfig {
	if len(d.Static) != 0 && d.Kubernetes != nil {
		panic(path + ": static and kubernetes are exclusive")
	}
	conf := &DiscoveryConfig{}
	for i, p := range d.Static {
		conf.static = append(
			conf.static,
			nonnil(p, fmt.Sprintf("%s.static[%d]", path, i)).trySeal(fmt.Sprintf("%s.static[%d]", path, i)),
		)
	}
	if d.Kubernetes != nil {
		conf.kubernetes = d.Kubernetes.trySeal(path + ".kubernetes")
	}
	return conf
}

type KubernetesDiscoveryMarshall struct {
	Namespace       string        `yaml:"namespace"`
	LabelSelector   string        `yaml:"labelSelector"`
	Port            int32         `yaml:"port,omitempty"`
	Scheme          string        `yaml:"scheme,omitempty"`
	RefreshInterval time.Duration `yaml:"refreshInterval,omitempty"`
}

func (k *KubernetesDiscoveryMarshall) trySeal(path string) *KubernetesDiscoveryConfig {
	port := k.Port
	if port == 0 {
		port = DefaultTransportPort
	}
	scheme := k.Scheme
	if scheme == "" {
		scheme = "http"
	}
	interval := k.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &KubernetesDiscoveryConfig{
		namespace:       required(k.Namespace, path+".namespace"),
		labelSelector:   required(k.LabelSelector, path+".labelSelector"),
		port:            port,
		scheme:          scheme,
		refreshInterval: interval,
	}
}

type TransportConfigMarshall struct {
	Port        int32         `yaml:"port,omitempty"`
	Secret      string        `yaml:"secret"`
	Parallelism int64         `yaml:"parallelism,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

func (t *TransportConfigMarshall) trySeal(path string) *TransportConfig {
	port := t.Port
	if port == 0 {
		port = DefaultTransportPort
	}
	parallelism := t.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TransportConfig{
		port:        port,
		secret:      []byte(required(t.Secret, path+".secret")),
		parallelism: parallelism,
		timeout:     timeout,
	}
}

type RemoteMetadataConfigMarshall struct {
	Type        string `yaml:"type,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	Region      string `yaml:"region,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

func (r *RemoteMetadataConfigMarshall) trySeal(string) *RemoteMetadataConfig {
	return &RemoteMetadataConfig{
		storeType:   r.Type,
		endpoint:    r.Endpoint,
		region:      r.Region,
		serviceName: r.ServiceName,
		username:    r.Username,
		password:    r.Password,
	}
}

type PostgresConfigMarshall struct {
	URL string `yaml:"url,omitempty"`
}

func (p *PostgresConfigMarshall) trySeal(string) *PostgresConfig {
	return &PostgresConfig{url: p.URL}
}

type TracingConfigMarshall struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

func (t *TracingConfigMarshall) trySeal(path string) *TracingConfig {
	name := t.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	endpoint := t.Endpoint
	if t.Enabled {
		endpoint = required(endpoint, path+".endpoint")
	}
	return &TracingConfig{
		enabled:     t.Enabled,
		endpoint:    endpoint,
		serviceName: name,
		insecure:    t.Insecure,
	}
}

type GuardrailConfigMarshall struct {
	Regex     []string                   `yaml:"regex,omitempty"`
	StopWords []*StopWordsConfigMarshall `yaml:"stopWords,omitempty"`
}

func (g *GuardrailConfigMarshall) trySeal(path string) *GuardrailConfig {
	conf := &GuardrailConfig{regex: append([]string{}, g.Regex...)}
	for i, sw := range g.StopWords {
		p := fmt.Sprintf("%s.stopWords[%d]", path, i)
		conf.stopWords = append(conf.stopWords, nonnil(sw, p).trySeal(p))
	}
	return conf
}

type StopWordsConfigMarshall struct {
	Index        string   `yaml:"index"`
	SourceFields []string `yaml:"sourceFields"`
}

func (s *StopWordsConfigMarshall) trySeal(path string) *StopWordsConfig {
	if len(s.SourceFields) == 0 {
		panic(path + ".sourceFields is required")
	}
	return &StopWordsConfig{
		index:        required(s.Index, path+".index"),
		sourceFields: append([]string{}, s.SourceFields...),
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

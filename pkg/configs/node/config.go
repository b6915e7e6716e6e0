package node

import (
	"net/url"
	"time"
)

// Configuration of a node.
//
// to get `NodeConfig` instance, use `TrySeal(*NodeConfigMarshall)` or `Unmarshal`.
type NodeConfig struct {
	cluster        *ClusterConfig
	node           *PeerConfig
	discovery      *DiscoveryConfig
	transport      *TransportConfig
	multiTenancy   bool
	remoteMetadata *RemoteMetadataConfig
	postgres       *PostgresConfig
	tracing        *TracingConfig
	guardrail      *GuardrailConfig
}

func (c *NodeConfig) Cluster() *ClusterConfig {
	return c.cluster
}

// the node itself.
func (c *NodeConfig) Node() *PeerConfig {
	return c.node
}

func (c *NodeConfig) Discovery() *DiscoveryConfig {
	return c.discovery
}

func (c *NodeConfig) Transport() *TransportConfig {
	return c.transport
}

// MultiTenancy tells whether every document access requires a tenant id.
func (c *NodeConfig) MultiTenancy() bool {
	return c.multiTenancy
}

func (c *NodeConfig) RemoteMetadata() *RemoteMetadataConfig {
	return c.remoteMetadata
}

func (c *NodeConfig) Postgres() *PostgresConfig {
	return c.postgres
}

func (c *NodeConfig) Tracing() *TracingConfig {
	return c.tracing
}

func (c *NodeConfig) Guardrail() *GuardrailConfig {
	return c.guardrail
}

type ClusterConfig struct {
	name string
}

// name of the cluster. default = "opensearch"
func (c *ClusterConfig) Name() string {
	return c.name
}

type PeerConfig struct {
	id      string
	name    string
	address *url.URL
	roles   []string
}

func (p *PeerConfig) Id() string {
	return p.id
}

// name of the node. default = id
func (p *PeerConfig) Name() string {
	return p.name
}

// root URL of the node transport.
func (p *PeerConfig) Address() *url.URL {
	u := *p.address
	return &u
}

// roles of the node. default = ["data"]
func (p *PeerConfig) Roles() []string {
	return append([]string{}, p.roles...)
}

// How to find other nodes.
//
// When both of Static and Kubernetes are empty, the node forms a cluster by itself.
type DiscoveryConfig struct {
	static     []*PeerConfig
	kubernetes *KubernetesDiscoveryConfig
}

func (d *DiscoveryConfig) Static() []*PeerConfig {
	return append([]*PeerConfig{}, d.static...)
}

// Kubernetes returns nil when kubernetes discovery is not configured.
func (d *DiscoveryConfig) Kubernetes() *KubernetesDiscoveryConfig {
	return d.kubernetes
}

type KubernetesDiscoveryConfig struct {
	namespace       string
	labelSelector   string
	port            int32
	scheme          string
	refreshInterval time.Duration
}

func (k *KubernetesDiscoveryConfig) Namespace() string {
	return k.namespace
}

func (k *KubernetesDiscoveryConfig) LabelSelector() string {
	return k.labelSelector
}

// transport port of discovered pods. default = 9300
func (k *KubernetesDiscoveryConfig) Port() int32 {
	return k.port
}

func (k *KubernetesDiscoveryConfig) Scheme() string {
	return k.scheme
}

func (k *KubernetesDiscoveryConfig) RefreshInterval() time.Duration {
	return k.refreshInterval
}

type TransportConfig struct {
	port        int32
	secret      []byte
	parallelism int64
	timeout     time.Duration
}

func (t *TransportConfig) Port() int32 {
	return t.port
}

// key to sign and verify tokens between nodes (HS256).
func (t *TransportConfig) Secret() []byte {
	return append([]byte{}, t.secret...)
}

// how many nodes are requested at once in a fan-out. default = 8
func (t *TransportConfig) Parallelism() int64 {
	return t.parallelism
}

// timeout per node request. default = 30s
func (t *TransportConfig) Timeout() time.Duration {
	return t.timeout
}

// Where metadata (controllers, models, memory containers) are stored.
//
// Type is one of "RemoteOpenSearch", "AWSOpenSearchService", "AWSDynamoDB" or empty.
// Values are validated when a backend is built from them.
type RemoteMetadataConfig struct {
	storeType   string
	endpoint    string
	region      string
	serviceName string
	username    string
	password    string
}

func (r *RemoteMetadataConfig) Type() string {
	return r.storeType
}

func (r *RemoteMetadataConfig) Endpoint() string {
	return r.endpoint
}

func (r *RemoteMetadataConfig) Region() string {
	return r.region
}

func (r *RemoteMetadataConfig) ServiceName() string {
	return r.serviceName
}

func (r *RemoteMetadataConfig) Username() string {
	return r.username
}

func (r *RemoteMetadataConfig) Password() string {
	return r.password
}

type PostgresConfig struct {
	url string
}

// connection string for database. Empty means "not used".
func (p *PostgresConfig) URL() string {
	return p.url
}

type TracingConfig struct {
	enabled     bool
	endpoint    string
	serviceName string
	insecure    bool
}

func (t *TracingConfig) Enabled() bool {
	return t.enabled
}

// OTLP/HTTP endpoint, as host:port.
func (t *TracingConfig) Endpoint() string {
	return t.endpoint
}

func (t *TracingConfig) ServiceName() string {
	return t.serviceName
}

func (t *TracingConfig) Insecure() bool {
	return t.insecure
}

type GuardrailConfig struct {
	regex     []string
	stopWords []*StopWordsConfig
}

func (g *GuardrailConfig) Regex() []string {
	return append([]string{}, g.regex...)
}

func (g *GuardrailConfig) StopWords() []*StopWordsConfig {
	return append([]*StopWordsConfig{}, g.stopWords...)
}

type StopWordsConfig struct {
	index        string
	sourceFields []string
}

func (s *StopWordsConfig) Index() string {
	return s.index
}

func (s *StopWordsConfig) SourceFields() []string {
	return append([]string{}, s.sourceFields...)
}

package model

import (
	"context"
	"net/http"
	"slices"

	"github.com/opst/mlcommons/pkg/sdk"
)

// Index is the name of the index storing models.
const Index = ".plugins-ml-model"

const (
	ModelIdField                  = "model_id"
	IsModelControllerEnabledField = "is_model_controller_enabled"
)

type Algorithm string

const (
	TextEmbedding   Algorithm = "TEXT_EMBEDDING"
	SparseEncoding  Algorithm = "SPARSE_ENCODING"
	TextSimilarity  Algorithm = "TEXT_SIMILARITY"
	QuestionAnswer  Algorithm = "QUESTION_ANSWERING"
	Remote          Algorithm = "REMOTE"
	AgentAlgorithm  Algorithm = "AGENT"
	KMeansAlgorithm Algorithm = "KMEANS"
)

// SupportsController tells a controller can be created for models of the algorithm.
func (a Algorithm) SupportsController() bool {
	return a == TextEmbedding || a == Remote
}

type State string

const (
	Registered        State = "REGISTERED"
	Deploying         State = "DEPLOYING"
	Deployed          State = "DEPLOYED"
	PartiallyDeployed State = "PARTIALLY_DEPLOYED"
	Undeployed        State = "UNDEPLOYED"
	DeployFailed      State = "DEPLOY_FAILED"
)

// Model is a registered model document.
//
// Only fields used to manage its controller are held.
type Model struct {
	ModelId                  string    `json:"model_id,omitempty"`
	Name                     string    `json:"name,omitempty"`
	Algorithm                Algorithm `json:"algorithm,omitempty"`
	State                    State     `json:"model_state,omitempty"`
	PlanningWorkerNodes      []string  `json:"planning_worker_nodes,omitempty"`
	IsModelControllerEnabled *bool     `json:"is_model_controller_enabled,omitempty"`
	TenantId                 string    `json:"tenant_id,omitempty"`
}

// WorkerNodes returns ids of nodes serving the model.
//
// Models not deployed (even partially) have no worker nodes.
func (m *Model) WorkerNodes() []string {
	switch m.State {
	case Deployed, PartiallyDeployed:
		return slices.Clone(m.PlanningWorkerNodes)
	default:
		return nil
	}
}

func (m *Model) ControllerEnabled() bool {
	return m.IsModelControllerEnabled != nil && *m.IsModelControllerEnabled
}

// Repository reads and writes model documents.
type Repository struct {
	client *sdk.Client
}

func NewRepository(client *sdk.Client) *Repository {
	return &Repository{client: client}
}

// Get finds a model. When it is not found, it returns a StatusError with 404.
func (r *Repository) Get(ctx context.Context, modelId string, tenantId string) (*Model, error) {
	resp, err := r.client.GetDataObject(ctx, sdk.NewGetDataObjectRequest().
		Index(Index).
		Id(modelId).
		TenantId(tenantId).
		Build(),
	)
	if err != nil && !sdk.IsNotFound(err) {
		return nil, err
	}
	if err != nil || !resp.Found() {
		return nil, sdk.NewStatusError(http.StatusNotFound, "Failed to find model with the provided model ID: %s", modelId)
	}
	m := &Model{}
	if err := resp.DecodeSource(m); err != nil {
		return nil, err
	}
	if m.ModelId == "" {
		m.ModelId = modelId
	}
	return m, nil
}

// Put indexes m with its model id.
func (r *Repository) Put(ctx context.Context, m *Model) error {
	_, err := r.client.PutDataObject(ctx, sdk.NewPutDataObjectRequest().
		Index(Index).
		Id(m.ModelId).
		TenantId(m.TenantId).
		DataObject(m).
		Build(),
	)
	return err
}

// SetControllerEnabled updates the flag telling the model has its controller.
func (r *Repository) SetControllerEnabled(ctx context.Context, modelId string, tenantId string, enabled bool) error {
	_, err := r.client.UpdateDataObject(ctx, sdk.NewUpdateDataObjectRequest().
		Index(Index).
		Id(modelId).
		TenantId(tenantId).
		DataObject(map[string]any{IsModelControllerEnabledField: enabled}).
		Build(),
	)
	return err
}

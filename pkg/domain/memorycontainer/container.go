// Package memorycontainer is about memory containers: named sets of memory indices of agents.
package memorycontainer

import (
	"encoding/json"
	"time"

	"github.com/opst/mlcommons/pkg/domain/model"
	"github.com/opst/mlcommons/pkg/wire"
)

// Index is the name of the index storing memory containers.
const Index = ".plugins-ml-memory-container"

type MemoryContainer struct {
	Id              string
	Name            string
	Description     string
	Owner           string
	TenantId        string
	Configuration   *Configuration
	CreatedTime     time.Time
	LastUpdatedTime time.Time
}

type configurationDocument struct {
	IndexPrefix        string          `json:"index_prefix,omitempty"`
	EmbeddingModelType model.Algorithm `json:"embedding_model_type,omitempty"`
	EmbeddingModelId   string          `json:"embedding_model_id,omitempty"`
	LlmId              string          `json:"llm_id,omitempty"`
	Dimension          int             `json:"dimension,omitempty"`
	MaxInferSize       int             `json:"max_infer_size,omitempty"`
	DisableHistory     bool            `json:"disable_history"`
	DisableSession     bool            `json:"disable_session"`
	UseSystemIndex     *bool           `json:"use_system_index,omitempty"`
}

type containerDocument struct {
	Name            string         `json:"name,omitempty"`
	Description     string         `json:"description,omitempty"`
	Owner           string         `json:"owner_id,omitempty"`
	TenantId        string         `json:"tenant_id,omitempty"`
	Configuration   *Configuration `json:"configuration,omitempty"`
	CreatedTime     int64          `json:"created_time,omitempty"`
	LastUpdatedTime int64          `json:"last_updated_time,omitempty"`
}

func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromEpochMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (c *Configuration) MarshalJSON() ([]byte, error) {
	useSystemIndex := c.UseSystemIndex
	return json.Marshal(configurationDocument{
		IndexPrefix:        c.IndexPrefix,
		EmbeddingModelType: c.EmbeddingModelType,
		EmbeddingModelId:   c.EmbeddingModelId,
		LlmId:              c.LlmId,
		Dimension:          c.Dimension,
		MaxInferSize:       c.MaxInferSize,
		DisableHistory:     c.DisableHistory,
		DisableSession:     c.DisableSession,
		UseSystemIndex:     &useSystemIndex,
	})
}

// UnmarshalJSON reads c. Missing use_system_index means true.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	doc := configurationDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*c = Configuration{
		IndexPrefix:        doc.IndexPrefix,
		EmbeddingModelType: doc.EmbeddingModelType,
		EmbeddingModelId:   doc.EmbeddingModelId,
		LlmId:              doc.LlmId,
		Dimension:          doc.Dimension,
		MaxInferSize:       doc.MaxInferSize,
		DisableHistory:     doc.DisableHistory,
		DisableSession:     doc.DisableSession,
		UseSystemIndex:     doc.UseSystemIndex == nil || *doc.UseSystemIndex,
	}
	return nil
}

// MarshalJSON renders the document of m. Its id is not a part of the document.
func (m *MemoryContainer) MarshalJSON() ([]byte, error) {
	return json.Marshal(containerDocument{
		Name:            m.Name,
		Description:     m.Description,
		Owner:           m.Owner,
		TenantId:        m.TenantId,
		Configuration:   m.Configuration,
		CreatedTime:     epochMillis(m.CreatedTime),
		LastUpdatedTime: epochMillis(m.LastUpdatedTime),
	})
}

// UnmarshalJSON reads a document into m, keeping m.Id.
func (m *MemoryContainer) UnmarshalJSON(data []byte) error {
	doc := containerDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*m = MemoryContainer{
		Id:              m.Id,
		Name:            doc.Name,
		Description:     doc.Description,
		Owner:           doc.Owner,
		TenantId:        doc.TenantId,
		Configuration:   doc.Configuration,
		CreatedTime:     fromEpochMillis(doc.CreatedTime),
		LastUpdatedTime: fromEpochMillis(doc.LastUpdatedTime),
	}
	return nil
}

func (c *Configuration) WriteTo(out *wire.StreamOutput) error {
	out.WriteOptionalString(c.IndexPrefix)
	out.WriteOptionalString(string(c.EmbeddingModelType))
	out.WriteOptionalString(c.EmbeddingModelId)
	out.WriteOptionalString(c.LlmId)
	out.WriteVInt(int32(c.Dimension))
	out.WriteVInt(int32(c.MaxInferSize))
	out.WriteBool(c.DisableHistory)
	out.WriteBool(c.DisableSession)
	out.WriteBool(c.UseSystemIndex)
	return nil
}

func ReadConfiguration(in *wire.StreamInput) (*Configuration, error) {
	c := &Configuration{}
	var err error
	if c.IndexPrefix, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	typ, err := in.ReadOptionalString()
	if err != nil {
		return nil, err
	}
	c.EmbeddingModelType = model.Algorithm(typ)
	if c.EmbeddingModelId, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	if c.LlmId, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	dim, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	c.Dimension = int(dim)
	maxInfer, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	c.MaxInferSize = int(maxInfer)
	if c.DisableHistory, err = in.ReadBool(); err != nil {
		return nil, err
	}
	if c.DisableSession, err = in.ReadBool(); err != nil {
		return nil, err
	}
	if c.UseSystemIndex, err = in.ReadBool(); err != nil {
		return nil, err
	}
	return c, nil
}

// WriteTo writes m. Tenant id is written only for version 3.1.0 or later.
func (m *MemoryContainer) WriteTo(out *wire.StreamOutput) error {
	out.WriteOptionalString(m.Id)
	out.WriteString(m.Name)
	out.WriteOptionalString(m.Description)
	out.WriteOptionalString(m.Owner)
	if err := out.WriteOptional(m.Configuration != nil, m.Configuration); err != nil {
		return err
	}
	out.WriteZLong(epochMillis(m.CreatedTime))
	out.WriteZLong(epochMillis(m.LastUpdatedTime))
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(m.TenantId)
	}
	return nil
}

func ReadMemoryContainer(in *wire.StreamInput) (*MemoryContainer, error) {
	m := &MemoryContainer{}
	var err error
	if m.Id, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	if m.Name, err = in.ReadString(); err != nil {
		return nil, err
	}
	if m.Description, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	if m.Owner, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	present, err := in.ReadBool()
	if err != nil {
		return nil, err
	}
	if present {
		if m.Configuration, err = ReadConfiguration(in); err != nil {
			return nil, err
		}
	}
	created, err := in.ReadZLong()
	if err != nil {
		return nil, err
	}
	updated, err := in.ReadZLong()
	if err != nil {
		return nil, err
	}
	m.CreatedTime = fromEpochMillis(created)
	m.LastUpdatedTime = fromEpochMillis(updated)
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		if m.TenantId, err = in.ReadOptionalString(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

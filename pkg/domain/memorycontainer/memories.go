package memorycontainer

import (
	"time"

	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/wire"
)

// PayloadType is what kind of memories are added.
type PayloadType string

const (
	Conversational PayloadType = "conversational"
	Data           PayloadType = "data"
)

func (p PayloadType) IsValid() bool {
	return p == Conversational || p == Data
}

const (
	SessionIdKey = "session_id"

	MemoryContainerIdField = "memory_container_id"
	MessageIdField         = "message_id"
	NamespaceField         = "namespace"
)

type Message struct {
	Role        string `json:"role,omitempty"`
	ContentText string `json:"content_text"`
}

func (m Message) WriteTo(out *wire.StreamOutput) error {
	out.WriteOptionalString(m.Role)
	out.WriteString(m.ContentText)
	return nil
}

func ReadMessage(in *wire.StreamInput) (Message, error) {
	role, err := in.ReadOptionalString()
	if err != nil {
		return Message{}, err
	}
	content, err := in.ReadString()
	if err != nil {
		return Message{}, err
	}
	return Message{Role: role, ContentText: content}, nil
}

// AddMemoriesInput is memories to be added into a container.
type AddMemoriesInput struct {
	ContainerId string
	PayloadType PayloadType
	Messages    []Message
	BinaryData  string
	Namespace   map[string]string
	Infer       bool
	Metadata    map[string]string
	Tags        map[string]string
	Owner       string
	TenantId    string
}

// Validate checks the input. Empty payload type is taken as conversational.
func (in *AddMemoriesInput) Validate() error {
	if in.PayloadType == "" {
		in.PayloadType = Conversational
	}
	if !in.PayloadType.IsValid() {
		return sdk.NewIllegalArgumentError("Unknown payload type: %s", in.PayloadType)
	}
	if len(in.Messages) == 0 && in.Infer {
		return sdk.NewIllegalArgumentError("No messages provided when inferring memory")
	}
	if in.Infer && in.PayloadType != Conversational {
		return sdk.NewIllegalArgumentError("Infer is only supported for conversation memory")
	}
	if in.ContainerId == "" {
		return sdk.NewIllegalArgumentError("No memory container id provided")
	}
	if in.PayloadType == Conversational && len(in.Messages) == 0 {
		return sdk.NewIllegalArgumentError("No messages provided")
	}
	if in.PayloadType == Data && in.BinaryData == "" {
		return sdk.NewIllegalArgumentError("No data provided")
	}
	return nil
}

func (in *AddMemoriesInput) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(in.ContainerId)
	out.WriteString(string(in.PayloadType))
	if err := wire.WriteList(out, in.Messages); err != nil {
		return err
	}
	out.WriteOptionalString(in.BinaryData)
	out.WriteOptionalStringMap(in.Namespace)
	out.WriteBool(in.Infer)
	out.WriteOptionalStringMap(in.Metadata)
	out.WriteOptionalStringMap(in.Tags)
	out.WriteOptionalString(in.Owner)
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(in.TenantId)
	}
	return nil
}

func ReadAddMemoriesInput(in *wire.StreamInput) (*AddMemoriesInput, error) {
	r := &AddMemoriesInput{}
	var err error
	if r.ContainerId, err = in.ReadString(); err != nil {
		return nil, err
	}
	payload, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	r.PayloadType = PayloadType(payload)
	if r.Messages, err = wire.ReadList(in, ReadMessage); err != nil {
		return nil, err
	}
	if r.BinaryData, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	if r.Namespace, err = in.ReadOptionalStringMap(); err != nil {
		return nil, err
	}
	if r.Infer, err = in.ReadBool(); err != nil {
		return nil, err
	}
	if r.Metadata, err = in.ReadOptionalStringMap(); err != nil {
		return nil, err
	}
	if r.Tags, err = in.ReadOptionalStringMap(); err != nil {
		return nil, err
	}
	if r.Owner, err = in.ReadOptionalString(); err != nil {
		return nil, err
	}
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		if r.TenantId, err = in.ReadOptionalString(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WorkingMemory is a document in the working memory index.
type WorkingMemory struct {
	ContainerId     string            `json:"memory_container_id"`
	PayloadType     PayloadType       `json:"payload_type"`
	Messages        []Message         `json:"messages,omitempty"`
	MessageId       *int              `json:"message_id,omitempty"`
	BinaryData      string            `json:"binary_data,omitempty"`
	Namespace       map[string]string `json:"namespace,omitempty"`
	NamespaceSize   int               `json:"namespace_size"`
	Infer           bool              `json:"infer"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
	Owner           string            `json:"owner_id,omitempty"`
	TenantId        string            `json:"tenant_id,omitempty"`
	CreatedTime     int64             `json:"created_time"`
	LastUpdatedTime int64             `json:"last_updated_time"`
}

// Session is a document in the sessions index.
type Session struct {
	ContainerId     string            `json:"memory_container_id"`
	Namespace       map[string]string `json:"namespace,omitempty"`
	Owner           string            `json:"owner_id,omitempty"`
	TenantId        string            `json:"tenant_id,omitempty"`
	CreatedTime     int64             `json:"created_time"`
	LastUpdatedTime int64             `json:"last_updated_time"`
}

// AddMemoriesResult tells where memories are added.
type AddMemoriesResult struct {
	SessionId        string   `json:"session_id,omitempty"`
	WorkingMemoryIds []string `json:"working_memory_ids"`
}

func (r *AddMemoriesResult) WriteTo(out *wire.StreamOutput) error {
	out.WriteOptionalString(r.SessionId)
	out.WriteStringArray(r.WorkingMemoryIds)
	return nil
}

func ReadAddMemoriesResult(in *wire.StreamInput) (*AddMemoriesResult, error) {
	sessionId, err := in.ReadOptionalString()
	if err != nil {
		return nil, err
	}
	ids, err := in.ReadStringArray()
	if err != nil {
		return nil, err
	}
	return &AddMemoriesResult{SessionId: sessionId, WorkingMemoryIds: ids}, nil
}

func newWorkingMemory(in *AddMemoriesInput, now time.Time) *WorkingMemory {
	ns := map[string]string{}
	for k, v := range in.Namespace {
		ns[k] = v
	}
	return &WorkingMemory{
		ContainerId:     in.ContainerId,
		PayloadType:     in.PayloadType,
		Namespace:       ns,
		NamespaceSize:   len(ns),
		Infer:           in.Infer,
		Metadata:        in.Metadata,
		Tags:            in.Tags,
		Owner:           in.Owner,
		TenantId:        in.TenantId,
		CreatedTime:     now.UnixMilli(),
		LastUpdatedTime: now.UnixMilli(),
	}
}

package memorycontainer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
)

// Validator screens texts. It is satisfied by *guardrail.Guardrail.
type Validator interface {
	Validate(ctx context.Context, input string) bool
}

// Service manages memory containers and their memories through sdk.Client.
type Service struct {
	client    *sdk.Client
	logger    echo.Logger
	now       func() time.Time
	guardrail Validator
}

type Option func(*Service) *Service

func WithLogger(logger echo.Logger) Option {
	return func(s *Service) *Service {
		s.logger = logger
		return s
	}
}

// WithClock replaces the source of created and updated times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) *Service {
		s.now = now
		return s
	}
}

// WithGuardrail rejects memories whose messages are not accepted by v.
func WithGuardrail(v Validator) Option {
	return func(s *Service) *Service {
		s.guardrail = v
		return s
	}
}

func NewService(client *sdk.Client, options ...Option) *Service {
	s := &Service{
		client: client,
		logger: log.New("memory_container"),
		now:    time.Now,
	}
	for _, o := range options {
		s = o(s)
	}
	return s
}

// Create validates and indexes a new container, then returns its id.
//
// Name is required. Configuration is defaulted when it is nil.
func (s *Service) Create(ctx context.Context, m *MemoryContainer) (string, error) {
	if strings.TrimSpace(m.Name) == "" {
		return "", sdk.NewIllegalArgumentError("Memory container name is required")
	}
	if m.Configuration == nil {
		m.Configuration = NewConfiguration()
	}
	if err := m.Configuration.Validate(); err != nil {
		return "", err
	}
	m.Configuration.Normalize()

	now := s.now().UTC().Truncate(time.Millisecond)
	m.Id = uuid.NewString()
	m.CreatedTime = now
	m.LastUpdatedTime = now

	resp, err := s.client.PutDataObject(ctx, sdk.NewPutDataObjectRequest().
		Index(Index).
		Id(m.Id).
		TenantId(m.TenantId).
		OverwriteIfExists(false).
		DataObject(m).
		Build(),
	)
	if err != nil {
		return "", err
	}
	s.logger.Infof("memory container %s is created with indices %s", resp.Id(), strings.Join(m.Configuration.IndexNames(), ","))
	return resp.Id(), nil
}

// Get finds a container. When it is not found, it returns a StatusError with 404.
func (s *Service) Get(ctx context.Context, id string, tenantId string) (*MemoryContainer, error) {
	resp, err := s.client.GetDataObject(ctx, sdk.NewGetDataObjectRequest().
		Index(Index).
		Id(id).
		TenantId(tenantId).
		Build(),
	)
	if err != nil && !sdk.IsNotFound(err) {
		return nil, err
	}
	if err != nil || !resp.Found() {
		return nil, sdk.NewStatusError(http.StatusNotFound, "Memory container not found: %s", id)
	}
	m := &MemoryContainer{Id: id}
	if err := resp.DecodeSource(m); err != nil {
		return nil, xe.Wrap(err)
	}
	if m.Configuration == nil {
		m.Configuration = NewConfiguration()
	}
	return m, nil
}

// UpdateInput is a partial change of a container. Nil fields are left as is.
type UpdateInput struct {
	Name          *string
	Description   *string
	Configuration *Configuration
}

// Update applies in to the container.
//
// Embedding settings already set cannot be changed, since memories are indexed with them.
func (s *Service) Update(ctx context.Context, id string, tenantId string, in UpdateInput) (*sdk.DocWriteResult, error) {
	current, err := s.Get(ctx, id, tenantId)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, sdk.NewIllegalArgumentError("Memory container name cannot be empty")
		}
		current.Name = *in.Name
	}
	if in.Description != nil {
		current.Description = *in.Description
	}
	if in.Configuration != nil {
		if err := current.Configuration.CompareEmbedding(in.Configuration); err != nil {
			return nil, err
		}
		current.Configuration.Update(in.Configuration)
		if err := current.Configuration.Validate(); err != nil {
			return nil, err
		}
	}
	current.LastUpdatedTime = s.now().UTC().Truncate(time.Millisecond)

	resp, err := s.client.UpdateDataObject(ctx, sdk.NewUpdateDataObjectRequest().
		Index(Index).
		Id(id).
		TenantId(tenantId).
		DataObject(current).
		Build(),
	)
	if err != nil {
		return nil, err
	}
	result, err := resp.Parser().DocWriteResult()
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return result, nil
}

// Delete removes the container. Memories in its indices are not removed.
func (s *Service) Delete(ctx context.Context, id string, tenantId string) (*sdk.DocWriteResult, error) {
	resp, err := s.client.DeleteDataObject(ctx, sdk.NewDeleteDataObjectRequest().
		Index(Index).
		Id(id).
		TenantId(tenantId).
		Build(),
	)
	if err != nil {
		return nil, err
	}
	result, err := resp.Parser().DocWriteResult()
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if result.Result == sdk.ResultNotFound {
		return nil, sdk.NewStatusError(http.StatusNotFound, "Memory container not found: %s", id)
	}
	return result, nil
}

// Search finds containers matching source. It returns found containers and the total count.
func (s *Service) Search(ctx context.Context, tenantId string, source *sdk.SearchSource) ([]*MemoryContainer, int64, error) {
	resp, err := s.client.SearchDataObject(ctx, sdk.NewSearchDataObjectRequest().
		Indices(Index).
		TenantId(tenantId).
		SearchSource(source).
		Build(),
	)
	if err != nil {
		return nil, 0, err
	}
	hits, err := resp.Hits()
	if err != nil {
		return nil, 0, xe.Wrap(err)
	}
	containers := make([]*MemoryContainer, 0, len(hits.Hits))
	for _, h := range hits.Hits {
		m := &MemoryContainer{Id: h.Id}
		if err := h.DecodeSource(m); err != nil {
			return nil, 0, xe.WrapWithNote("memory container "+h.Id, err)
		}
		containers = append(containers, m)
	}
	return containers, hits.Total.Value, nil
}

// AddMemories writes memories into the working memory index of the container.
//
// For conversational memories without session in namespace, a new session is started
// unless the container disables sessions. Each message becomes a working memory,
// numbered after ones already in the session.
func (s *Service) AddMemories(ctx context.Context, in *AddMemoriesInput) (*AddMemoriesResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if s.guardrail != nil {
		for _, m := range in.Messages {
			if !s.guardrail.Validate(ctx, m.ContentText) {
				return nil, sdk.NewIllegalArgumentError("guardrails triggered for user input")
			}
		}
	}
	container, err := s.Get(ctx, in.ContainerId, in.TenantId)
	if err != nil {
		return nil, err
	}
	config := container.Configuration
	if in.Infer && config.LlmId == "" {
		return nil, sdk.NewIllegalArgumentError("Memory container %s has no LLM to infer memories", in.ContainerId)
	}

	now := s.now().UTC()
	result := &AddMemoriesResult{WorkingMemoryIds: []string{}}

	if in.Namespace == nil {
		in.Namespace = map[string]string{}
	}
	if in.PayloadType == Conversational && !config.DisableSession {
		if sessionId := in.Namespace[SessionIdKey]; sessionId != "" {
			result.SessionId = sessionId
		} else {
			sessionId, err := s.startSession(ctx, config, in, now)
			if err != nil {
				return nil, err
			}
			in.Namespace[SessionIdKey] = sessionId
			result.SessionId = sessionId
		}
	}

	index := config.IndexName(Working)
	bulk := sdk.NewBulkDataObjectRequest().GlobalIndex(index).GlobalTenantId(in.TenantId).Build()

	switch in.PayloadType {
	case Conversational:
		offset, err := s.countMessages(ctx, index, in)
		if err != nil {
			return nil, err
		}
		for n, msg := range in.Messages {
			doc := newWorkingMemory(in, now)
			doc.Messages = []Message{msg}
			messageId := offset + n
			doc.MessageId = &messageId
			if err := bulk.Add(sdk.NewPutDataObjectRequest().DataObject(doc).Build()); err != nil {
				return nil, xe.Wrap(err)
			}
		}
	case Data:
		doc := newWorkingMemory(in, now)
		doc.BinaryData = in.BinaryData
		doc.Messages = in.Messages
		if err := bulk.Add(sdk.NewPutDataObjectRequest().DataObject(doc).Build()); err != nil {
			return nil, xe.Wrap(err)
		}
	}

	resp, err := s.client.BulkDataObject(ctx, bulk)
	if err != nil {
		return nil, err
	}
	failures := []error{}
	for _, r := range resp.Responses() {
		if r.IsFailed() {
			failures = append(failures, r.Cause())
			continue
		}
		result.WorkingMemoryIds = append(result.WorkingMemoryIds, r.Id())
	}
	if len(failures) != 0 {
		s.logger.Warnf(
			"memory container %s: %d of %d working memories are not written",
			in.ContainerId, len(failures), len(resp.Responses()),
		)
		return result, sdk.NewStatusError(
			http.StatusInternalServerError, "Failed to add memories into %s: %s", index, errors.Join(failures...),
		)
	}
	return result, nil
}

func (s *Service) startSession(ctx context.Context, config *Configuration, in *AddMemoriesInput, now time.Time) (string, error) {
	ns := map[string]string{}
	for k, v := range in.Namespace {
		ns[k] = v
	}
	resp, err := s.client.PutDataObject(ctx, sdk.NewPutDataObjectRequest().
		Index(config.IndexName(Sessions)).
		TenantId(in.TenantId).
		DataObject(&Session{
			ContainerId:     in.ContainerId,
			Namespace:       ns,
			Owner:           in.Owner,
			TenantId:        in.TenantId,
			CreatedTime:     now.UnixMilli(),
			LastUpdatedTime: now.UnixMilli(),
		}).
		Build(),
	)
	if err != nil {
		return "", xe.WrapWithNote("failed to start session", err)
	}
	return resp.Id(), nil
}

// countMessages counts working memories already in the session of in.
func (s *Service) countMessages(ctx context.Context, index string, in *AddMemoriesInput) (int, error) {
	sessionId := in.Namespace[SessionIdKey]
	if sessionId == "" {
		return 0, nil
	}
	resp, err := s.client.SearchDataObject(ctx, sdk.NewSearchDataObjectRequest().
		Indices(index).
		TenantId(in.TenantId).
		SearchSource(&sdk.SearchSource{
			Query: sdk.BoolQuery{Filter: []sdk.Query{
				sdk.TermQuery{Field: MemoryContainerIdField, Value: in.ContainerId},
				sdk.TermQuery{Field: NamespaceField + "." + SessionIdKey, Value: sessionId},
			}},
			Size: 1,
		}).
		Build(),
	)
	if err != nil {
		if sdk.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	hits, err := resp.Hits()
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(hits.Total.Value), nil
}

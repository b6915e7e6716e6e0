package memorycontainer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/opst/mlcommons/pkg/domain/model"
	"github.com/opst/mlcommons/pkg/sdk"
)

const (
	// SystemIndexPrefix leads names of memory indices kept as system indices.
	SystemIndexPrefix = ".plugins-ml-am"

	// DefaultIndexPrefix is the prefix of memory indices in system indices, when not given.
	DefaultIndexPrefix = "default"

	DefaultMaxInferSize = 5
	MaxInferSizeLimit   = 10
)

type MemoryType string

const (
	Sessions MemoryType = "sessions"
	Working  MemoryType = "working"
	LongTerm MemoryType = "long-term"
	History  MemoryType = "history"
)

var memoryTypes = []MemoryType{Sessions, Working, LongTerm, History}

func (t MemoryType) IsValid() bool {
	return slices.Contains(memoryTypes, t)
}

// Configuration is how a memory container stores memories.
type Configuration struct {
	IndexPrefix        string
	EmbeddingModelType model.Algorithm
	EmbeddingModelId   string
	LlmId              string

	// Dimension of text embedding. Zero means unset.
	Dimension int

	// MaxInferSize is used only with LlmId. Zero means unset.
	MaxInferSize int

	DisableHistory bool
	DisableSession bool
	UseSystemIndex bool
}

// NewConfiguration returns a configuration with default values.
func NewConfiguration() *Configuration {
	return &Configuration{UseSystemIndex: true}
}

// Validate checks consistency of embedding settings and limits.
//
// It returns IllegalArgumentError for invalid configuration.
func (c *Configuration) Validate() error {
	if c.EmbeddingModelId != "" && c.EmbeddingModelType == "" {
		return sdk.NewIllegalArgumentError("Embedding model type is required when embedding model id is provided")
	}
	if c.EmbeddingModelType != "" && c.EmbeddingModelId == "" {
		return sdk.NewIllegalArgumentError("Embedding model id is required when embedding model type is provided")
	}
	if c.EmbeddingModelType != "" {
		switch c.EmbeddingModelType {
		case model.TextEmbedding:
			if c.Dimension <= 0 {
				return sdk.NewIllegalArgumentError("Dimension is required for TEXT_EMBEDDING")
			}
		case model.SparseEncoding:
			if c.Dimension != 0 {
				return sdk.NewIllegalArgumentError("Dimension is not allowed for SPARSE_ENCODING")
			}
		default:
			return sdk.NewIllegalArgumentError("Embedding model type must be either TEXT_EMBEDDING or SPARSE_ENCODING")
		}
	}
	if c.MaxInferSize > MaxInferSizeLimit {
		return sdk.NewIllegalArgumentError("Maximum infer size cannot exceed %d", MaxInferSizeLimit)
	}
	return nil
}

// Normalize fills defaults: index prefix, and max infer size for configurations with LLM.
func (c *Configuration) Normalize() {
	if strings.TrimSpace(c.IndexPrefix) == "" {
		if c.UseSystemIndex {
			c.IndexPrefix = DefaultIndexPrefix
		} else {
			c.IndexPrefix = strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		}
	}
	if c.LlmId == "" {
		c.MaxInferSize = 0
	} else if c.MaxInferSize == 0 {
		c.MaxInferSize = DefaultMaxInferSize
	}
}

// indexNamePrefix is the leading part of index names of memories.
func (c *Configuration) indexNamePrefix() string {
	if c.UseSystemIndex {
		return SystemIndexPrefix + "-" + c.IndexPrefix + "-memory-"
	}
	return c.IndexPrefix + "-memory-"
}

// IndexName returns the name of the index of memories of the type.
//
// It returns empty string for unknown types.
func (c *Configuration) IndexName(t MemoryType) string {
	if !t.IsValid() {
		return ""
	}
	return c.indexNamePrefix() + string(t)
}

// IndexNames returns names of indices used by the container, skipping disabled ones.
func (c *Configuration) IndexNames() []string {
	names := []string{}
	for _, t := range memoryTypes {
		if (t == Sessions && c.DisableSession) || (t == History && c.DisableHistory) {
			continue
		}
		names = append(names, c.IndexName(t))
	}
	return names
}

// CompareEmbedding fails when other changes embedding settings already set on c.
//
// Memories already indexed are embedded with them, so they cannot be changed.
func (c *Configuration) CompareEmbedding(other *Configuration) error {
	if c.EmbeddingModelId == "" || other.EmbeddingModelId == "" {
		return nil
	}
	mismatches := []string{}
	if c.EmbeddingModelId != other.EmbeddingModelId {
		mismatches = append(mismatches, fmt.Sprintf("embedding_model_id (existing='%s', requested='%s')", c.EmbeddingModelId, other.EmbeddingModelId))
	}
	if c.EmbeddingModelType != other.EmbeddingModelType {
		mismatches = append(mismatches, fmt.Sprintf("embedding_model_type (existing='%s', requested='%s')", c.EmbeddingModelType, other.EmbeddingModelType))
	}
	if c.Dimension != other.Dimension {
		mismatches = append(mismatches, fmt.Sprintf("dimension (existing=%d, requested=%d)", c.Dimension, other.Dimension))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return sdk.NewIllegalArgumentError(
		"Embedding configuration of index prefix '%s' cannot be changed: %s",
		c.IndexPrefix, strings.Join(mismatches, ", "),
	)
}

// Update overwrites c with fields set on other. Index prefix is never changed.
//
// Changing embedding model type to SPARSE_ENCODING clears dimension.
func (c *Configuration) Update(other *Configuration) {
	if other == nil {
		return
	}
	if other.LlmId != "" {
		c.LlmId = other.LlmId
	}
	if other.MaxInferSize != 0 {
		c.MaxInferSize = other.MaxInferSize
	}
	if other.EmbeddingModelId != "" {
		c.EmbeddingModelId = other.EmbeddingModelId
	}
	if other.EmbeddingModelType != "" {
		c.EmbeddingModelType = other.EmbeddingModelType
		if other.EmbeddingModelType == model.SparseEncoding {
			c.Dimension = 0
		}
	}
	if other.Dimension != 0 {
		c.Dimension = other.Dimension
	}
}

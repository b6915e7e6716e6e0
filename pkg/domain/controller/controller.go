package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/wire"
)

const (
	ModelIdField  = "model_id"
	TenantIdField = sdk.TenantIdField
)

// Controller is a per-model configuration of rate limiters for each user.
//
// Its id in the index is the model id.
type Controller struct {
	Family  Family
	ModelId string

	// Limiters maps user name to its rate limiter.
	//
	// A nil map is omitted on rendering, while a parsed document always has a non-nil map.
	Limiters map[string]*RateLimiter

	TenantId string
}

// Update merges other into c, user by user.
//
// A user not in c gets other's limiter as it is, even if it is empty.
// For other users, fields set in other's limiter override c's.
func (c *Controller) Update(other *Controller) {
	if other == nil || len(other.Limiters) == 0 {
		return
	}
	if c.Limiters == nil {
		c.Limiters = map[string]*RateLimiter{}
	}
	for user, limiter := range other.Limiters {
		current, ok := c.Limiters[user]
		if !ok {
			if limiter == nil {
				c.Limiters[user] = nil
			} else {
				copied := *limiter
				c.Limiters[user] = &copied
			}
			continue
		}
		c.Limiters[user] = current.Merge(limiter)
	}
}

// IsDeployRequiredAfterUpdate tells whether Update(other) makes a limiter which should be
// deployed: valid, and different from the current one.
func (c *Controller) IsDeployRequiredAfterUpdate(other *Controller) bool {
	if other == nil || len(other.Limiters) == 0 {
		return false
	}
	for user, limiter := range other.Limiters {
		current := c.Limiters[user]
		merged := current.Merge(limiter)
		if merged.IsValid() && !merged.Equal(current) {
			return true
		}
	}
	return false
}

// IsValid tells c has at least one valid rate limiter.
func (c *Controller) IsValid() bool {
	for _, l := range c.Limiters {
		if l.IsValid() {
			return true
		}
	}
	return false
}

func sortedUsers(m map[string]*RateLimiter) []string {
	users := make([]string, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// MarshalJSON renders c with field names of its family.
//
// Users are rendered in the order of name. A nil limiter is rendered as null.
func (c *Controller) MarshalJSON() ([]byte, error) {
	f := c.Family.traits()
	buf := &bytes.Buffer{}
	buf.WriteString(`{"` + ModelIdField + `":`)
	if err := writeJSONString(buf, c.ModelId); err != nil {
		return nil, err
	}

	if c.Limiters != nil {
		buf.WriteString(`,"` + f.limitersField + `":{`)
		for i, user := range sortedUsers(c.Limiters) {
			if 0 < i {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, user); err != nil {
				return nil, err
			}
			buf.WriteByte(':')

			limiter := c.Limiters[user]
			if limiter == nil {
				buf.WriteString("null")
				continue
			}
			buf.WriteByte('{')
			if limiter.Number != "" {
				buf.WriteString(`"` + f.numberField + `":`)
				if err := writeJSONString(buf, limiter.Number); err != nil {
					return nil, err
				}
			}
			if limiter.Unit != "" {
				if limiter.Number != "" {
					buf.WriteByte(',')
				}
				buf.WriteString(`"` + f.unitField + `":`)
				if err := writeJSONString(buf, string(limiter.Unit)); err != nil {
					return nil, err
				}
			}
			buf.WriteByte('}')
		}
		buf.WriteByte('}')
	}

	if c.TenantId != "" {
		buf.WriteString(`,"` + TenantIdField + `":`)
		if err := writeJSONString(buf, c.TenantId); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a document of c's family. Unknown fields are skipped.
//
// A missing or null model id is an IllegalStateError.
// A missing or null limiter map is parsed as an empty map.
func (c *Controller) UnmarshalJSON(data []byte) error {
	f := c.Family.traits()

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return sdk.NewIllegalArgumentError("failed to parse %s: %s", f.name, err)
	}

	modelId := ""
	if raw, ok := doc[ModelIdField]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &modelId); err != nil {
			return sdk.NewIllegalArgumentError("%s should be a string: %s", ModelIdField, err)
		}
	}
	if modelId == "" {
		return sdk.NewIllegalStateError("%s is required for %s", ModelIdField, f.name)
	}

	limiters := map[string]*RateLimiter{}
	if raw, ok := doc[f.limitersField]; ok && !isNull(raw) {
		users := map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &users); err != nil {
			return sdk.NewIllegalArgumentError("%s should be an object: %s", f.limitersField, err)
		}
		for user, raw := range users {
			limiter, err := parseRateLimiter(f, raw)
			if err != nil {
				return sdk.NewIllegalArgumentError("%s.%s: %s", f.limitersField, user, err)
			}
			limiters[user] = limiter
		}
	}

	tenantId := ""
	if raw, ok := doc[TenantIdField]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &tenantId); err != nil {
			return sdk.NewIllegalArgumentError("%s should be a string: %s", TenantIdField, err)
		}
	}

	c.ModelId = modelId
	c.Limiters = limiters
	c.TenantId = tenantId
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func parseRateLimiter(f familyTraits, raw json.RawMessage) (*RateLimiter, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("rate limiter should be an object, but null")
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("rate limiter should be an object: %w", err)
	}

	limiter := &RateLimiter{}
	if raw, ok := fields[f.numberField]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			var n json.Number
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, fmt.Errorf("%s should be a number: %w", f.numberField, err)
			}
			s = n.String()
		}
		limiter.Number = s
	}
	if raw, ok := fields[f.unitField]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s should be a string: %w", f.unitField, err)
		}
		u, err := ParseTimeUnit(s)
		if err != nil {
			return nil, err
		}
		limiter.Unit = u
	}
	return limiter, nil
}

// Parse parses a document of the family.
func Parse(family Family, data []byte) (*Controller, error) {
	c := &Controller{Family: family}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// WriteTo writes c. The family is not written: readers know which they read.
//
// Tenant id is written only for version 3.1.0 or later.
func (c *Controller) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(c.ModelId)
	if c.Limiters == nil {
		out.WriteBool(false)
	} else {
		out.WriteBool(true)
		out.WriteVInt(int32(len(c.Limiters)))
		for _, user := range sortedUsers(c.Limiters) {
			out.WriteString(user)
			limiter := c.Limiters[user]
			if err := out.WriteOptional(limiter != nil, limiter); err != nil {
				return err
			}
		}
	}
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(c.TenantId)
	}
	return nil
}

// ReadController returns a reader of a Controller in the family.
func ReadController(family Family) func(*wire.StreamInput) (*Controller, error) {
	return func(in *wire.StreamInput) (*Controller, error) {
		c := &Controller{Family: family}
		modelId, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		c.ModelId = modelId

		present, err := in.ReadBool()
		if err != nil {
			return nil, err
		}
		if present {
			n, err := in.ReadVInt()
			if err != nil {
				return nil, err
			}
			if n < 0 || int(n) > in.Remaining() {
				return nil, fmt.Errorf("%w: %d rate limiters in %d bytes", wire.ErrMalformed, n, in.Remaining())
			}
			c.Limiters = make(map[string]*RateLimiter, n)
			for range n {
				user, err := in.ReadString()
				if err != nil {
					return nil, err
				}
				present, err := in.ReadBool()
				if err != nil {
					return nil, err
				}
				if !present {
					c.Limiters[user] = nil
					continue
				}
				limiter, err := ReadRateLimiter(in)
				if err != nil {
					return nil, err
				}
				c.Limiters[user] = limiter
			}
		}

		if in.Version().OnOrAfter(wire.V_3_1_0) {
			tenantId, err := in.ReadOptionalString()
			if err != nil {
				return nil, err
			}
			c.TenantId = tenantId
		}
		return c, nil
	}
}

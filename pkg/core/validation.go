package core

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("kind", func(fl validator.FieldLevel) bool {
			return Kind(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

type storeRequest struct {
	AgentID    string  `json:"agent_id" validate:"required"`
	Kind       Kind    `json:"kind" validate:"kind"`
	Importance float64 `json:"importance" validate:"gte=0,lte=1"`
}

type retrieveRequest struct {
	AgentID             string  `json:"agent_id" validate:"required"`
	Kind                Kind    `json:"kind" validate:"omitempty,kind"`
	Limit               int     `json:"limit" validate:"gte=0"`
	ImportanceThreshold float64 `json:"importance_threshold" validate:"gte=0,lte=1"`
}

type updateRequest struct {
	AgentID    string  `json:"agent_id" validate:"required"`
	Importance float64 `json:"importance" validate:"gte=0,lte=1"`
}

// validateRequest converts the first validator failure into a ValidationError.
func validateRequest(req interface{}) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	return toValidationError(fieldErrs[0])
}

func toValidationError(e validator.FieldError) *ValidationError {
	var reason string
	switch e.Tag() {
	case "required":
		reason = "is required"
	case "kind":
		reason = fmt.Sprintf("unknown kind %q", e.Value())
	case "gte":
		reason = fmt.Sprintf("must be >= %s (got: %v)", e.Param(), e.Value())
	case "lte":
		reason = fmt.Sprintf("must be <= %s (got: %v)", e.Param(), e.Value())
	default:
		reason = fmt.Sprintf("failed %s validation", e.Tag())
	}
	return &ValidationError{Field: e.Field(), Reason: reason}
}

// normalizeMetadata copies metadata into the closed value set: string, bool,
// float64, nil, []interface{} and map[string]interface{} of those.
func normalizeMetadata(metadata map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, &ValidationError{Field: "metadata." + k, Reason: err.Error()}
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			nv, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			nv, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// dedupeTags drops empty and repeated tags, keeping first occurrence order.
func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

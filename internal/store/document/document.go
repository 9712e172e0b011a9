// Package document evaluates batch conditions and assignments against
// schemaless JSON documents. It backs the stores that keep items as JSON
// (memory and postgres) so both agree with the DynamoDB semantics: a missing
// list reads as empty, a missing number never satisfies a comparison and list
// removal past the end is a no-op.
package document

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

// Doc is a stored item in its generic JSON form.
type Doc map[string]any

// Encode converts a model into its generic form using its json tags.
func Encode(item any) (Doc, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a document (or a slice of documents) into out.
func Decode(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// ID returns the document key.
func (d Doc) ID() string {
	s, _ := d[string(models.FieldID)].(string)
	return s
}

// String returns a string attribute, or "" when it is missing or not a string.
func (d Doc) String(f models.Field) string {
	s, _ := d[string(f)].(string)
	return s
}

func (d Doc) list(f models.Field) []any {
	l, _ := d[string(f)].([]any)
	return l
}

func (d Doc) number(f models.Field) (float64, bool) {
	n, ok := d[string(f)].(float64)
	return n, ok
}

// Check evaluates every condition against the stored state of one item.
// current is ignored when exists is false. The first failing condition is
// reported as store.ErrConflict.
func Check(current Doc, exists bool, conds []store.Condition) error {
	for _, c := range conds {
		ok, err := holds(current, exists, c)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %T%+v not satisfied", store.ErrConflict, c, c)
		}
	}
	return nil
}

func holds(d Doc, exists bool, c store.Condition) (bool, error) {
	switch c := c.(type) {
	case store.ItemExists:
		return exists, nil
	case store.ItemAbsent:
		return !exists, nil
	case store.ListExcludes:
		if !exists {
			return true, nil
		}
		return !slices.Contains(d.list(c.Field), any(c.Value)), nil
	case store.ListIndexEquals:
		if !exists {
			return false, nil
		}
		l := d.list(c.Field)
		if c.Index < 0 || c.Index >= len(l) {
			return false, nil
		}
		return l[c.Index] == any(c.Value), nil
	case store.ListSizeEquals:
		return exists && len(d.list(c.Field)) == c.Size, nil
	case store.FieldEquals:
		if !exists {
			return false, nil
		}
		want, err := normalize(c.Value)
		if err != nil {
			return false, err
		}
		got, present := d[string(c.Field)]
		return present && reflect.DeepEqual(got, want), nil
	case store.FieldGreaterThan:
		if !exists {
			return false, nil
		}
		n, ok := d.number(c.Field)
		return ok && n > float64(c.Value), nil
	case store.FieldGreaterThanField:
		if !exists {
			return false, nil
		}
		a, okA := d.number(c.Field)
		b, okB := d.number(c.Other)
		return okA && okB && a > b, nil
	default:
		return false, fmt.Errorf("%w: unsupported condition %T", store.ErrInvalidBatch, c)
	}
}

// Apply returns a copy of doc with the assignments applied in order.
func Apply(doc Doc, assignments []store.Assignment) (Doc, error) {
	out := doc.Clone()
	for _, a := range assignments {
		switch a := a.(type) {
		case store.SetField:
			v, err := normalize(a.Value)
			if err != nil {
				return nil, err
			}
			out[string(a.Field)] = v
		case store.IncrementField:
			n, ok := out.number(a.Field)
			if !ok {
				if _, present := out[string(a.Field)]; present {
					return nil, fmt.Errorf("%w: %s is not a number", store.ErrInvalidBatch, a.Field)
				}
			}
			out[string(a.Field)] = n + float64(a.Delta)
		case store.AppendToList:
			l := out.list(a.Field)
			out[string(a.Field)] = append(slices.Clone(l), a.Value)
		case store.RemoveListIndex:
			l := out.list(a.Field)
			if a.Index >= 0 && a.Index < len(l) {
				out[string(a.Field)] = slices.Delete(slices.Clone(l), a.Index, a.Index+1)
			}
		default:
			return nil, fmt.Errorf("%w: unsupported assignment %T", store.ErrInvalidBatch, a)
		}
	}
	return out, nil
}

// normalize converts a Go value to the form json.Unmarshal would produce so
// it compares equal to stored values.
func normalize(v any) (any, error) {
	switch v := v.(type) {
	case string, bool, float64, nil:
		return v, nil
	case int:
		return float64(v), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return map[string]any(Doc(v).Clone())
	default:
		return v
	}
}

package graphql

import (
	"encoding/json"

	"github.com/valyala/fastjson"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// incrementalResponse accumulates the payloads of one multipart stream. It is
// owned by the stream goroutine; snapshots copy out of it.
type incrementalResponse struct {
	combined   *fastjson.Value
	extensions []byte
	hasNext    bool
	errors     gqlerror.List
}

func newIncrementalResponse() *incrementalResponse {
	return &incrementalResponse{combined: fastjson.MustParse(`{}`)}
}

// ingest folds a batch of part bodies into the accumulator: data is lifted to
// its path and deep-merged, extensions keep the latest non-empty value,
// hasNext tracks the last payload and errors are collected. Only JSON parse
// failures are returned.
func (r *incrementalResponse) ingest(parts []string) error {
	for _, part := range parts {
		payload, err := fastjson.Parse(part)
		if err != nil {
			return err
		}

		data := payload.Get("data")
		if data != nil && data.Type() != fastjson.TypeNull {
			if path := payload.Get("path"); path != nil {
				data = liftByPath(path, data)
			}
			mergeValues(r.combined, data)
		}

		if ext := payload.Get("extensions"); ext != nil && ext.Type() == fastjson.TypeObject {
			if obj, err := ext.Object(); err == nil && obj.Len() > 0 {
				r.extensions = ext.MarshalTo(nil)
			}
		}

		if errs := payload.Get("errors"); errs != nil && errs.Type() == fastjson.TypeArray {
			if items, err := errs.Array(); err == nil && len(items) > 0 {
				var list gqlerror.List
				if err := json.Unmarshal(errs.MarshalTo(nil), &list); err == nil {
					r.errors = append(r.errors, list...)
				}
			}
		}

		r.hasNext = payload.GetBool("hasNext")
	}
	return nil
}

// liftByPath nests data so that it sits at the location the payload's path
// names. Numeric path elements build arrays, string elements build objects.
func liftByPath(path, data *fastjson.Value) *fastjson.Value {
	elems, err := path.Array()
	if err != nil {
		return data
	}
	lifted := data
	for i := len(elems) - 1; i >= 0; i-- {
		if elem := elems[i]; elem.Type() == fastjson.TypeString {
			obj := fastjson.MustParse(`{}`)
			obj.Set(string(elem.GetStringBytes()), lifted)
			lifted = obj
		} else {
			arr := fastjson.MustParse(`[]`)
			arr.SetArrayItem(elem.GetInt(), lifted)
			lifted = arr
		}
	}
	return lifted
}

// mergeValues deep-merges src into dst. Objects combine key by key, arrays
// merge index-wise so a later chunk can enrich an existing element, scalars
// from src win. Existing keys are never removed.
func mergeValues(dst, src *fastjson.Value) {
	switch {
	case dst.Type() == fastjson.TypeObject && src.Type() == fastjson.TypeObject:
		srcObj, _ := src.Object()
		srcObj.Visit(func(key []byte, v *fastjson.Value) {
			if existing := dst.Get(string(key)); existing != nil && mergeable(existing, v) {
				mergeValues(existing, v)
				return
			}
			dst.Set(string(key), v)
		})
	case dst.Type() == fastjson.TypeArray && src.Type() == fastjson.TypeArray:
		srcItems, _ := src.Array()
		dstItems, _ := dst.Array()
		for i, v := range srcItems {
			// A null slot in src is the padding liftByPath puts before an
			// indexed element; it leaves the existing element in place.
			if i < len(dstItems) && v.Type() == fastjson.TypeNull {
				continue
			}
			if i < len(dstItems) && mergeable(dstItems[i], v) {
				mergeValues(dstItems[i], v)
				continue
			}
			dst.SetArrayItem(i, v)
		}
	}
}

func mergeable(a, b *fastjson.Value) bool {
	if a.Type() == fastjson.TypeObject && b.Type() == fastjson.TypeObject {
		return true
	}
	return a.Type() == fastjson.TypeArray && b.Type() == fastjson.TypeArray
}

func (r *incrementalResponse) empty() bool {
	obj, err := r.combined.Object()
	return err != nil || obj.Len() == 0
}

// snapshot renders the current merged view.
func (r *incrementalResponse) snapshot() StreamResponse {
	res := StreamResponse{HasNext: r.hasNext}
	if !r.empty() {
		res.Data = r.combined.MarshalTo(nil)
	}
	if len(r.extensions) > 0 {
		res.Extensions = append(json.RawMessage(nil), r.extensions...)
	}
	return res
}

// errorSnapshot renders a terminal snapshot: the partial result plus the
// failure that ended the stream.
func (r *incrementalResponse) errorSnapshot(statusCode int, message string, gqlErrors gqlerror.List) StreamResponse {
	snap := r.snapshot()
	snap.HasNext = false
	snap.Errors = &ResponseErrors{
		NetworkStatusCode: statusCode,
		Message:           message,
		GraphQLErrors:     gqlErrors,
	}
	return snap
}

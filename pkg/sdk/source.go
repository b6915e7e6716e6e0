package sdk

import "strings"

// Filter applies includes and excludes to the top level and dotted paths of source.
//
// nil FetchSourceContext returns source as it is. FetchSource false returns nil.
func (f *FetchSourceContext) Filter(source map[string]any) map[string]any {
	if f == nil || source == nil {
		return source
	}
	if !f.FetchSource {
		return nil
	}

	filtered := map[string]any{}
	if len(f.Includes) == 0 {
		for k, v := range source {
			filtered[k] = v
		}
	} else {
		for _, path := range f.Includes {
			if v, ok := Lookup(source, path); ok {
				setPath(filtered, path, v)
			}
		}
	}
	for _, path := range f.Excludes {
		deletePath(filtered, path)
	}
	return filtered
}

// MergeSource merges patch into dst, recursively for objects.
// It returns dst.
func MergeSource(dst map[string]any, patch map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, pv := range patch {
		pm, pIsMap := pv.(map[string]any)
		dm, dIsMap := dst[k].(map[string]any)
		if pIsMap && dIsMap {
			dst[k] = MergeSource(dm, pm)
			continue
		}
		dst[k] = pv
	}
	return dst
}

// CopySource copies source deeply enough to be mutated.
func CopySource(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}
	copied := make(map[string]any, len(source))
	for k, v := range source {
		if m, ok := v.(map[string]any); ok {
			copied[k] = CopySource(m)
			continue
		}
		copied[k] = v
	}
	return copied
}

func setPath(doc map[string]any, path string, value any) {
	keys := strings.Split(path, ".")
	current := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := current[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[k] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}

func deletePath(doc map[string]any, path string) {
	keys := strings.Split(path, ".")
	current := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := current[k].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, keys[len(keys)-1])
}

package source

// The remote API's response envelope is not contractually fixed. Listings
// have been observed under results.campgrounds, under a top-level
// campgrounds key, under a generic data key, and as a bare array. Each
// extractor knows one shape; they are tried in order and the first match
// wins.

type extractor struct {
	name string
	fn   func(payload any) ([]map[string]any, bool)
}

var extractors = []extractor{
	{"results.campgrounds", extractNestedResults},
	{"campgrounds", keyExtractor("campgrounds")},
	{"data", keyExtractor("data")},
	{"bare-array", extractBareArray},
}

// extract runs the extractor chain over a decoded payload. ok is false only
// when no extractor recognizes the shape.
func extract(payload any) (records []map[string]any, shape string, ok bool) {
	for _, e := range extractors {
		if recs, matched := e.fn(payload); matched {
			return recs, e.name, true
		}
	}
	return nil, "", false
}

func extractNestedResults(payload any) ([]map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	results, ok := obj["results"].(map[string]any)
	if !ok {
		return nil, false
	}
	return listingArray(results["campgrounds"])
}

func keyExtractor(key string) func(any) ([]map[string]any, bool) {
	return func(payload any) ([]map[string]any, bool) {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[key]
		if !ok {
			return nil, false
		}
		return listingArray(v)
	}
}

func extractBareArray(payload any) ([]map[string]any, bool) {
	arr, ok := payload.([]any)
	if !ok {
		return nil, false
	}
	return listingArray(arr)
}

// listingArray converts a decoded JSON array into listing maps. Non-object
// elements are skipped rather than failing the page.
func listingArray(v any) ([]map[string]any, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	records := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records, true
}

// totalPages reads meta.total_pages from a dict envelope, defaulting to 1
// when the source does not report it.
func totalPages(payload any) int {
	obj, ok := payload.(map[string]any)
	if !ok {
		return 1
	}
	meta, ok := obj["meta"].(map[string]any)
	if !ok {
		return 1
	}
	n, ok := meta["total_pages"].(float64)
	if !ok || n < 1 {
		return 1
	}
	return int(n)
}

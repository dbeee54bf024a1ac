package normalize

// Strategy pulls candidate records out of one payload shape. Strategies are
// independent; a strategy that does not recognize the payload returns nil.
type Strategy struct {
	Name    string
	Extract func(payload any) []map[string]any
}

// DefaultStrategies covers the shapes the auction source is known to emit.
var DefaultStrategies = []Strategy{
	{Name: "render_state", Extract: renderState},
	{Name: "query_cache", Extract: queryCache},
	{Name: "api_payload", Extract: APIPage},
}

// renderState reads props.pageProps.{auctions,items,lots,listings}.
func renderState(payload any) []map[string]any {
	props := pageProps(payload)
	if props == nil {
		return nil
	}
	var out []map[string]any
	for _, key := range []string{"auctions", "items", "lots", "listings"} {
		out = append(out, records(props[key])...)
	}
	return out
}

// queryCache reads the dehydrated query cache under
// props.pageProps.dehydratedState.queries[].state.data.
func queryCache(payload any) []map[string]any {
	state := object(pageProps(payload)["dehydratedState"])
	queries, _ := state["queries"].([]any)

	var out []map[string]any
	for _, q := range queries {
		data := object(object(q)["state"])["data"]
		switch d := data.(type) {
		case []any:
			out = append(out, records(d)...)
		case map[string]any:
			for _, key := range []string{"items", "lots", "auctions", "results"} {
				out = append(out, records(d[key])...)
			}
		}
	}
	return out
}

// APIPage reads a paginated API response: either a bare list or an object
// with an items list, falling back to lots when items is absent or empty.
// The scraper stops paginating on the first page this yields nothing for.
func APIPage(payload any) []map[string]any {
	switch p := payload.(type) {
	case []any:
		return records(p)
	case map[string]any:
		if items := records(p["items"]); len(items) > 0 {
			return items
		}
		return records(p["lots"])
	}
	return nil
}

func pageProps(payload any) map[string]any {
	return object(object(object(payload)["props"])["pageProps"])
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func records(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

package normalize

import (
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/alex-user-go/luxsearch/internal/search/types"
)

// Normalizer turns loosely structured backend payloads into canonical responses.
// It is safe for concurrent use.
type Normalizer struct {
	policy Policy
	logger *slog.Logger
}

// New creates a Normalizer. A nil logger discards output.
func New(policy Policy, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{
		policy: policy.withDefaults(),
		logger: logger,
	}
}

var std = New(DefaultPolicy(), nil)

// Normalize normalizes payload with the default policy.
func Normalize(payload any) types.Response {
	return std.Normalize(payload)
}

var poolPaths = []string{
	"items", "results", "offers", "hotels",
	"hotels.hotels", "hotels.items", "hotels.results", "hotels.top", "hotels.candidates",
	"top", "candidates", "ranked", "data", "payload",
}

var stepPoolPaths = []string{
	"offers", "items", "results", "hotels", "data",
	"hotels.hotels", "hotels.items", "top", "candidates",
}

var (
	narrativePaths = Fields("narrative", "summary", "text", "message", "hotels.narrative")
	agentPaths     = Fields("agent", "tool", "type", "workflow")
	budgetPaths    = []string{"budget", "budget_filter", "hotels.budget"}
)

const notesSeparator = " • "

// Normalize never fails. Anything that is not a JSON object yields the empty response.
func (n *Normalizer) Normalize(payload any) types.Response {
	root, ok := asMap(payload)
	if !ok {
		return types.Empty()
	}
	root = unwrapEnvelope(root)

	pools := collectPools(root)
	var candidates []any
	for _, pool := range pools {
		candidates = append(candidates, pool...)
	}
	if len(pools) == 0 && looksUseful(root) {
		candidates = []any{root}
	}

	items := make([]types.Item, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		rec, ok := asMap(c)
		if !ok {
			dropped++
			continue
		}
		item := n.NormalizeItem(Coerce(rec))
		if item == nil {
			dropped++
			continue
		}
		items = append(items, *item)
	}
	items = Dedupe(items)

	n.logger.Debug("payload normalized",
		"pools", len(pools),
		"candidates", len(candidates),
		"dropped", dropped,
		"items", len(items),
	)

	return types.NewResponse(items, buildMeta(root, len(pools), len(items)))
}

// unwrapEnvelope returns the first JSON content block of an RPC result,
// or m itself when there is none.
func unwrapEnvelope(m map[string]any) map[string]any {
	if result, ok := asMap(m["result"]); ok {
		if inner, ok := contentJSON(result); ok {
			return inner
		}
	}
	if inner, ok := contentJSON(m); ok {
		return inner
	}
	return m
}

func contentJSON(m map[string]any) (map[string]any, bool) {
	blocks, ok := m["content"].([]any)
	if !ok {
		return nil, false
	}
	for _, b := range blocks {
		block, ok := asMap(b)
		if !ok {
			continue
		}
		if inner, ok := asMap(block["json"]); ok {
			return inner, true
		}
	}
	return nil, false
}

func collectPools(root map[string]any) [][]any {
	var pools [][]any
	for _, path := range poolPaths {
		if list, ok := Lookup(root, path).([]any); ok {
			pools = append(pools, list)
		}
	}

	for _, step := range steps(root) {
		res := stepResult(step)
		if res == nil {
			continue
		}
		for _, path := range stepPoolPaths {
			if list, ok := Lookup(res, path).([]any); ok {
				pools = append(pools, list)
			}
		}
	}
	return pools
}

func steps(root map[string]any) []map[string]any {
	list, ok := root["steps"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, s := range list {
		if m, ok := asMap(s); ok {
			out = append(out, m)
		}
	}
	return out
}

func stepResult(step map[string]any) map[string]any {
	for _, k := range []string{"result", "output", "data"} {
		if m, ok := asMap(step[k]); ok {
			return unwrapEnvelope(m)
		}
	}
	return nil
}

func buildMeta(root map[string]any, pools, items int) types.Meta {
	var meta types.Meta

	meta.Notes = collectNotes(root)
	if s := firstString(root, narrativePaths); s != nil {
		meta.Narrative = *s
	} else if len(meta.Notes) > 0 {
		meta.Narrative = strings.Join(meta.Notes, notesSeparator)
	}
	if s := firstString(root, agentPaths); s != nil {
		meta.Agent = *s
	}

	budget := findBudget(root)
	if budget != nil {
		meta.Budget = maps.Clone(budget)
	}

	if pools > 0 || items > 0 {
		meta.Counts = &types.Counts{
			Pools:       pools,
			Items:       items,
			UnderBudget: budgetCount(budget, nil, "under_budget"),
			TotalIn:     budgetCount(budget, root, "total_in"),
		}
	}
	return meta
}

func findBudget(root map[string]any) map[string]any {
	for _, path := range budgetPaths {
		if m, ok := asMap(Lookup(root, path)); ok {
			return m
		}
	}
	return nil
}

// budgetCount reads key from the budget object or its meta, then from the
// root meta when root is given.
func budgetCount(budget, root map[string]any, key string) *int {
	var srcs []any
	if budget != nil {
		srcs = append(srcs, budget[key], Lookup(budget, "meta."+key))
	}
	if root != nil {
		srcs = append(srcs, Lookup(root, "meta."+key))
	}
	for _, v := range srcs {
		if f := ParseNumber(v); f != nil {
			n := int(*f)
			return &n
		}
	}
	return nil
}

func collectNotes(root map[string]any) []string {
	var notes []string
	add := func(v any) {
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				notes = append(notes, s)
			}
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
					notes = append(notes, strings.TrimSpace(s))
				}
			}
		}
	}

	add(root["notes"])
	add(Lookup(root, "plan.notes"))
	for _, step := range steps(root) {
		add(step["notes"])
		add(Lookup(step, "result.notes"))
	}
	return notes
}

// Dedupe keeps the first item for each lowercase id, falling back to the
// lowercase name. Items with neither are kept.
func Dedupe(items []types.Item) []types.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]types.Item, 0, len(items))
	for i, it := range items {
		key := dedupKey(it, i)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupKey(it types.Item, pos int) string {
	if it.ID != nil && *it.ID != "" {
		return "id:" + strings.ToLower(*it.ID)
	}
	if it.Name != nil && *it.Name != "" {
		return "name:" + strings.ToLower(*it.Name)
	}
	return "\x00#" + strconv.Itoa(pos)
}

// Merge combines responses from several backends in the given order.
func Merge(responses ...types.Response) types.Response {
	var (
		items []types.Item
		meta  types.Meta
		pools int
		under *int
		total *int
	)
	for _, r := range responses {
		items = append(items, r.Items...)
		if meta.Narrative == "" {
			meta.Narrative = r.Meta.Narrative
		}
		if meta.Agent == "" {
			meta.Agent = r.Meta.Agent
		}
		if meta.Budget == nil && r.Meta.Budget != nil {
			meta.Budget = maps.Clone(r.Meta.Budget)
		}
		meta.Notes = append(meta.Notes, r.Meta.Notes...)
		if c := r.Meta.Counts; c != nil {
			pools += c.Pools
			if under == nil {
				under = c.UnderBudget
			}
			if total == nil {
				total = c.TotalIn
			}
		}
	}

	items = Dedupe(items)
	if pools > 0 || len(items) > 0 {
		meta.Counts = &types.Counts{
			Pools:       pools,
			Items:       len(items),
			UnderBudget: under,
			TotalIn:     total,
		}
	}
	return types.NewResponse(items, meta)
}

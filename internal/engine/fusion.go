package engine

import "sort"

// Fuse merges rule-based and model-based candidates into a single
// non-overlapping entity set, sorted ascending by start offset.
//
// Candidates are walked in ascending start order. Each candidate is resolved
// against every already-accepted entity it overlaps:
//   - rule-based beats non-rule-based,
//   - rule-based vs rule-based is decided by higher confidence, with ties
//     keeping the already-accepted entity,
//   - anything else loses to the accepted entity.
//
// A candidate displaces the overlapped entities only if it wins every one of
// those contests; otherwise it is dropped. This resolves a candidate against
// all overlaps rather than just the first one encountered, so the output can
// never contain overlapping spans.
func Fuse(ruleEntities, modelEntities []Entity) []Entity {
	candidates := make([]Entity, 0, len(ruleEntities)+len(modelEntities))
	candidates = append(candidates, ruleEntities...)
	candidates = append(candidates, modelEntities...)
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	resolved := make([]Entity, 0, len(candidates))
	for _, cand := range candidates {
		overlapping := overlapIndices(resolved, cand)
		if len(overlapping) == 0 {
			resolved = append(resolved, cand)
			continue
		}

		wins := true
		for _, idx := range overlapping {
			if !beats(cand, resolved[idx]) {
				wins = false
				break
			}
		}
		if !wins {
			continue
		}

		resolved = removeIndices(resolved, overlapping)
		resolved = append(resolved, cand)
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Start < resolved[j].Start
	})
	return resolved
}

func overlapIndices(resolved []Entity, cand Entity) []int {
	var out []int
	for i, existing := range resolved {
		if cand.Overlaps(existing) {
			out = append(out, i)
		}
	}
	return out
}

// beats reports whether the candidate takes precedence over an accepted
// entity it overlaps. Rule-based detections are deterministic and trusted
// over heuristic model output.
func beats(cand, existing Entity) bool {
	candRule := cand.Method == MethodRuleBased
	existingRule := existing.Method == MethodRuleBased

	switch {
	case candRule && !existingRule:
		return true
	case candRule && existingRule:
		return cand.Confidence > existing.Confidence
	default:
		return false
	}
}

// removeIndices returns resolved without the entities at the given indices.
// Indices must be ascending.
func removeIndices(resolved []Entity, indices []int) []Entity {
	out := resolved[:0]
	next := 0
	for i, e := range resolved {
		if next < len(indices) && indices[next] == i {
			next++
			continue
		}
		out = append(out, e)
	}
	return out
}

package scene

// Part is one slice of a scene's timeline handed to the animation backend.
// Start is the offset into the scene in seconds; Duration is the part's
// rendered length. Consecutive parts overlap by the planner's overlap so
// the merged clip has no visible seam.
type Part struct {
	Index    int
	Start    float64
	Duration float64
}

// PlanParts splits a scene of sceneDur seconds into animation parts.
//
// Scenes no longer than maxPart become a single full-length part. Longer
// scenes are cut greedily at targetPart seconds; when the tail left after a
// cut would be shorter than half the target, the current part absorbs it
// instead of producing a sliver. Each subsequent part starts overlap seconds
// before the previous part ends.
func PlanParts(sceneDur, targetPart, maxPart, overlap float64) []Part {
	if sceneDur <= 0 {
		return nil
	}
	if sceneDur <= maxPart {
		return []Part{{Index: 0, Start: 0, Duration: sceneDur}}
	}

	var parts []Part
	start := 0.0
	for start < sceneDur {
		remaining := sceneDur - start
		dur := targetPart
		if remaining < dur {
			dur = remaining
		}
		if remaining-dur < targetPart/2 {
			dur = remaining
		}
		parts = append(parts, Part{Index: len(parts), Start: start, Duration: dur})
		start += dur - overlap
		if dur >= remaining {
			break
		}
	}
	return parts
}

package llm

import "github.com/deskrecall/deskrecalld/internal/store"

// sampleFrames implements the Orchestrator's uniform-stride sampling rule:
// at most k frames, always including the first and last, skipping frames
// marked black. Black frames are only skipped from the interior selection —
// if the first or last frame is black it is still included, since omitting
// either would misrepresent the session's true start/end.
func sampleFrames(frames []store.FrameRecord, k int) []store.FrameRecord {
	if len(frames) == 0 {
		return nil
	}
	if k <= 0 {
		k = 1
	}
	nonBlack := make([]store.FrameRecord, 0, len(frames))
	for i, f := range frames {
		if !f.IsBlack || i == 0 || i == len(frames)-1 {
			nonBlack = append(nonBlack, f)
		}
	}
	if len(nonBlack) <= k {
		return nonBlack
	}
	if k == 1 {
		return nonBlack[:1]
	}

	out := make([]store.FrameRecord, 0, k)
	stride := float64(len(nonBlack)-1) / float64(k-1)
	seen := map[int]bool{}
	for i := 0; i < k; i++ {
		idx := int(float64(i) * stride)
		if idx >= len(nonBlack) {
			idx = len(nonBlack) - 1
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, nonBlack[idx])
	}
	return out
}

package bot

import (
	"math"
	"math/rand"
	"sort"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

// Threat avoidance constants. The evaluation is stateless and re-entrant:
// each call reads current positions and issues an idempotent goal
// replacement, so rapid repeated invocations are safe.
const (
	threatRadius  = 12.0 // planar distance under which a hostile counts
	escapeSamples = 12   // candidates, evenly spaced in angle
	escapeRadMin  = 6.0
	escapeRadMax  = 14.0
	groundScanMax = 6    // max units to scan down for a ground altitude
	safeMargin    = 10.0 // desired min distance from every threat
)

// ThreatSample is one scored escape candidate.
type ThreatSample struct {
	Pos     worldclient.Vec3
	MinDist float64 // min planar distance to any threat
}

// EscapePlan is the outcome of one avoidance evaluation.
type EscapePlan struct {
	Goal    worldclient.Vec3
	Chosen  ThreatSample
	Samples []ThreatSample // sorted by MinDist descending
}

// GroundFunc probes for a ground altitude at (x,z), scanning down at most
// maxDrop units from fromY. It returns fromY when nothing solid is found.
type GroundFunc func(x, z, fromY float64, maxDrop int) (float64, bool)

// FilterThreats keeps entities whose kind is in the threat set and whose
// planar distance to pos is under the threat radius.
func FilterThreats(pos worldclient.Vec3, entities []worldclient.Entity, kinds map[string]bool) []worldclient.Vec3 {
	var out []worldclient.Vec3
	for _, e := range entities {
		if !kinds[e.Kind] {
			continue
		}
		if e.Pos.PlanarDistance(pos) < threatRadius {
			out = append(out, e.Pos)
		}
	}
	return out
}

// EscapeRadii draws one candidate radius per escape sample. Kept separate
// from PlanEscape so callers sharing an rng can release its lock before
// the ground probes run.
func EscapeRadii(rng *rand.Rand) []float64 {
	radii := make([]float64, escapeSamples)
	for i := range radii {
		radii[i] = escapeRadMin + rng.Float64()*(escapeRadMax-escapeRadMin)
	}
	return radii
}

// PlanEscape places one candidate per radius, evenly spaced in angle
// around pos, and picks the first one (by descending safety) that clears
// the safe margin, falling back to the overall best so a destination is
// always produced. Returns false only when there are no threats.
func PlanEscape(radii []float64, pos worldclient.Vec3, threats []worldclient.Vec3, ground GroundFunc) (EscapePlan, bool) {
	if len(threats) == 0 {
		return EscapePlan{}, false
	}

	samples := make([]ThreatSample, 0, len(radii))
	for i, radius := range radii {
		angle := float64(i) * (2 * math.Pi / float64(len(radii)))
		x := pos.X + math.Cos(angle)*radius
		z := pos.Z + math.Sin(angle)*radius
		y := pos.Y
		if ground != nil {
			y, _ = ground(x, z, pos.Y, groundScanMax)
		}
		cand := worldclient.Vec3{X: x, Y: y, Z: z}
		min := math.Inf(1)
		for _, t := range threats {
			if d := cand.PlanarDistance(t); d < min {
				min = d
			}
		}
		samples = append(samples, ThreatSample{Pos: cand, MinDist: min})
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].MinDist > samples[j].MinDist })

	chosen := samples[0]
	for _, s := range samples {
		if s.MinDist >= safeMargin {
			chosen = s
			break
		}
	}
	return EscapePlan{Goal: chosen.Pos, Chosen: chosen, Samples: samples}, true
}

// EscapeFallback computes a direct goal 10 units straight away from the
// nearest threat at the agent's altitude. Used when issuing the planned
// goal fails.
func EscapeFallback(pos worldclient.Vec3, threats []worldclient.Vec3) (worldclient.Vec3, bool) {
	if len(threats) == 0 {
		return worldclient.Vec3{}, false
	}
	nearest := threats[0]
	best := pos.PlanarDistance(nearest)
	for _, t := range threats[1:] {
		if d := pos.PlanarDistance(t); d < best {
			best = d
			nearest = t
		}
	}
	dx := pos.X - nearest.X
	dz := pos.Z - nearest.Z
	norm := math.Sqrt(dx*dx + dz*dz)
	if norm == 0 {
		// Threat exactly underneath; pick an arbitrary direction.
		dx, dz, norm = 1, 0, 1
	}
	return worldclient.Vec3{
		X: pos.X + dx/norm*safeMargin,
		Y: pos.Y,
		Z: pos.Z + dz/norm*safeMargin,
	}, true
}

package core

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// stepToward moves cur by at most dist towards target and returns the new
// position plus any distance left over after arrival.
func stepToward(cur, target Vec3, dist float64) (Vec3, float64) {
	gap := cur.DistanceTo(target)
	if gap <= dist {
		return target, dist - gap
	}
	dir := target.Sub(cur).Scale(1 / gap)
	return cur.Add(dir.Scale(dist)), 0
}

//
// ---------- Linear ----------
//

// LinearPath is a constant-velocity segment from start to end; the station
// stops at the end point.
type LinearPath struct {
	cur      Vec3
	end      Vec3
	speedMps float64
}

// NewLinearPath validates the segment parameters.
func NewLinearPath(start, end Vec3, speedMps float64) (*LinearPath, error) {
	if speedMps <= 0 {
		return nil, fmt.Errorf("%w: linear speed %.2f m/s must be positive", ErrInvalidMobilityParameters, speedMps)
	}
	return &LinearPath{cur: start, end: end, speedMps: speedMps}, nil
}

func (p *LinearPath) Advance(dt time.Duration) Vec3 {
	p.cur, _ = stepToward(p.cur, p.end, p.speedMps*dt.Seconds())
	return p.cur
}

//
// ---------- L-shaped ----------
//

// LShapedPath is two linear segments joined at a corner waypoint.
type LShapedPath struct {
	cur       Vec3
	waypoints []Vec3
	idx       int
	speedMps  float64
}

// NewLShapedPath validates the two-segment path.
func NewLShapedPath(start, corner, end Vec3, speedMps float64) (*LShapedPath, error) {
	if speedMps <= 0 {
		return nil, fmt.Errorf("%w: l-shaped speed %.2f m/s must be positive", ErrInvalidMobilityParameters, speedMps)
	}
	return &LShapedPath{
		cur:       start,
		waypoints: []Vec3{corner, end},
		speedMps:  speedMps,
	}, nil
}

func (p *LShapedPath) Advance(dt time.Duration) Vec3 {
	dist := p.speedMps * dt.Seconds()
	for dist > 0 && p.idx < len(p.waypoints) {
		var leftover float64
		p.cur, leftover = stepToward(p.cur, p.waypoints[p.idx], dist)
		if leftover == 0 && p.cur != p.waypoints[p.idx] {
			break
		}
		if p.cur == p.waypoints[p.idx] {
			p.idx++
		}
		dist = leftover
	}
	return p.cur
}

//
// ---------- Random waypoint ----------
//

// RandomWaypoint picks a uniformly random destination inside the bounds,
// travels there at a speed drawn uniformly from [vMin, vMax], pauses, and
// repeats.
type RandomWaypoint struct {
	bounds     Bounds
	vMin, vMax float64
	pauseSec   float64
	rng        *rand.Rand

	cur       Vec3
	target    Vec3
	speedMps  float64
	hasTarget bool
	pauseLeft float64
}

// NewRandomWaypoint validates the waypoint parameters. start must lie
// inside the bounds.
func NewRandomWaypoint(bounds Bounds, start Vec3, vMin, vMax float64, pause time.Duration, seed int64) (*RandomWaypoint, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: empty area bounds", ErrInvalidMobilityParameters)
	}
	if vMin <= 0 || vMax <= 0 {
		return nil, fmt.Errorf("%w: speeds must be positive, got v_min=%.2f v_max=%.2f", ErrInvalidMobilityParameters, vMin, vMax)
	}
	if vMin > vMax {
		return nil, fmt.Errorf("%w: v_min %.2f > v_max %.2f", ErrInvalidMobilityParameters, vMin, vMax)
	}
	if pause < 0 {
		return nil, fmt.Errorf("%w: pause %s is negative", ErrInvalidMobilityParameters, pause)
	}
	if !bounds.Contains(start) {
		return nil, fmt.Errorf("%w: start position outside bounds", ErrInvalidMobilityParameters)
	}
	return &RandomWaypoint{
		bounds:   bounds,
		vMin:     vMin,
		vMax:     vMax,
		pauseSec: pause.Seconds(),
		rng:      rand.New(rand.NewSource(seed)),
		cur:      start,
	}, nil
}

func (p *RandomWaypoint) Advance(dt time.Duration) Vec3 {
	sec := dt.Seconds()
	for sec > 0 {
		if p.pauseLeft > 0 {
			wait := math.Min(sec, p.pauseLeft)
			p.pauseLeft -= wait
			sec -= wait
			continue
		}
		if !p.hasTarget {
			p.target = Vec3{
				X: p.bounds.MinX + p.rng.Float64()*p.bounds.Width(),
				Y: p.bounds.MinY + p.rng.Float64()*p.bounds.Height(),
			}
			p.speedMps = p.vMin + p.rng.Float64()*(p.vMax-p.vMin)
			p.hasTarget = true
		}
		var leftover float64
		p.cur, leftover = stepToward(p.cur, p.target, p.speedMps*sec)
		if p.cur == p.target {
			p.hasTarget = false
			p.pauseLeft = p.pauseSec
		}
		sec = leftover / p.speedMps
	}
	return p.cur
}

//
// ---------- Manhattan / urban grid ----------
//

// ManhattanGrid travels along orthogonal grid edges; at each intersection
// it independently chooses straight, left or right with the configured
// probabilities. Directions that would leave the bounds are re-chosen.
type ManhattanGrid struct {
	bounds    Bounds
	blockM    float64
	speedMps  float64
	pStraight float64
	pLeft     float64
	rng       *rand.Rand

	cur        Vec3
	dir        Vec3 // unit axis vector
	distToNode float64
}

// NewManhattanGrid validates the grid parameters. The start position is
// snapped to the nearest grid intersection inside the bounds.
func NewManhattanGrid(bounds Bounds, start Vec3, blockM, speedMps, pStraight, pLeft, pRight float64, seed int64) (*ManhattanGrid, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: empty area bounds", ErrInvalidMobilityParameters)
	}
	if blockM <= 0 {
		return nil, fmt.Errorf("%w: block size %.2f m must be positive", ErrInvalidMobilityParameters, blockM)
	}
	if blockM > bounds.Width() || blockM > bounds.Height() {
		return nil, fmt.Errorf("%w: block size %.2f m exceeds area extent", ErrInvalidMobilityParameters, blockM)
	}
	if speedMps <= 0 {
		return nil, fmt.Errorf("%w: grid speed %.2f m/s must be positive", ErrInvalidMobilityParameters, speedMps)
	}
	if pStraight < 0 || pLeft < 0 || pRight < 0 {
		return nil, fmt.Errorf("%w: negative turn probability", ErrInvalidMobilityParameters)
	}
	if sum := pStraight + pLeft + pRight; math.Abs(sum-1) > 1e-6 {
		return nil, fmt.Errorf("%w: turn probabilities sum to %.4f, want 1", ErrInvalidMobilityParameters, sum)
	}

	g := &ManhattanGrid{
		bounds:    bounds,
		blockM:    blockM,
		speedMps:  speedMps,
		pStraight: pStraight,
		pLeft:     pLeft,
		rng:       rand.New(rand.NewSource(seed)),
	}
	g.cur = g.snapToGrid(start)
	g.dir = g.pickInitialDirection()
	g.distToNode = blockM
	return g, nil
}

// NewUrbanGrid is the urban-grid variant: block size plus a single turn
// probability split evenly between left and right, otherwise identical to
// the Manhattan walk.
func NewUrbanGrid(bounds Bounds, start Vec3, blockM, speedMps, turnProb float64, seed int64) (*ManhattanGrid, error) {
	if turnProb < 0 || turnProb > 1 {
		return nil, fmt.Errorf("%w: turn probability %.4f outside [0,1]", ErrInvalidMobilityParameters, turnProb)
	}
	return NewManhattanGrid(bounds, start, blockM, speedMps, 1-turnProb, turnProb/2, turnProb/2, seed)
}

func (g *ManhattanGrid) snapToGrid(p Vec3) Vec3 {
	snapped := Vec3{
		X: g.bounds.MinX + math.Round((p.X-g.bounds.MinX)/g.blockM)*g.blockM,
		Y: g.bounds.MinY + math.Round((p.Y-g.bounds.MinY)/g.blockM)*g.blockM,
	}
	return g.bounds.Clamp(snapped)
}

func (g *ManhattanGrid) pickInitialDirection() Vec3 {
	dirs := []Vec3{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}
	g.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
	for _, d := range dirs {
		if g.bounds.Contains(g.cur.Add(d.Scale(g.blockM))) {
			return d
		}
	}
	return Vec3{X: 1}
}

func (g *ManhattanGrid) Advance(dt time.Duration) Vec3 {
	travel := g.speedMps * dt.Seconds()
	for travel > 0 {
		step := math.Min(travel, g.distToNode)
		g.cur = g.cur.Add(g.dir.Scale(step))
		g.distToNode -= step
		travel -= step
		if g.distToNode <= 1e-9 {
			g.turnAtIntersection()
			g.distToNode = g.blockM
		}
	}
	return g.cur
}

// turnAtIntersection draws straight/left/right; if the drawn direction
// would leave the bounds, the remaining directions (including reversing)
// are tried in a fixed order so the walk never exits the area.
func (g *ManhattanGrid) turnAtIntersection() {
	left := Vec3{X: -g.dir.Y, Y: g.dir.X}
	right := Vec3{X: g.dir.Y, Y: -g.dir.X}
	reverse := g.dir.Scale(-1)

	var chosen Vec3
	switch r := g.rng.Float64(); {
	case r < g.pStraight:
		chosen = g.dir
	case r < g.pStraight+g.pLeft:
		chosen = left
	default:
		chosen = right
	}

	for _, d := range []Vec3{chosen, g.dir, left, right, reverse} {
		if g.bounds.Contains(g.cur.Add(d.Scale(g.blockM))) {
			g.dir = d
			return
		}
	}
	g.dir = reverse
}

//
// ---------- Reference-point group ----------
//

// ReferencePointGroup follows a virtual group centre driven by any other
// pattern; the station's position is the centre plus a random offset
// bounded by dMax, redrawn at the configured cadence. Positions are kept
// inside the bounds.
type ReferencePointGroup struct {
	center      TrajectoryGenerator
	bounds      Bounds
	dMax        float64
	redrawEvery float64 // seconds
	rng         *rand.Rand

	offset      Vec3
	sinceRedraw float64
	drawn       bool
}

// NewReferencePointGroup validates the group parameters.
func NewReferencePointGroup(center TrajectoryGenerator, bounds Bounds, dMax float64, redrawEvery time.Duration, seed int64) (*ReferencePointGroup, error) {
	if center == nil {
		return nil, fmt.Errorf("%w: group centre generator is nil", ErrInvalidMobilityParameters)
	}
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: empty area bounds", ErrInvalidMobilityParameters)
	}
	if dMax <= 0 {
		return nil, fmt.Errorf("%w: d_max %.2f m must be positive", ErrInvalidMobilityParameters, dMax)
	}
	if redrawEvery <= 0 {
		return nil, fmt.Errorf("%w: offset redraw cadence %s must be positive", ErrInvalidMobilityParameters, redrawEvery)
	}
	return &ReferencePointGroup{
		center:      center,
		bounds:      bounds,
		dMax:        dMax,
		redrawEvery: redrawEvery.Seconds(),
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

func (p *ReferencePointGroup) Advance(dt time.Duration) Vec3 {
	c := p.center.Advance(dt)
	p.sinceRedraw += dt.Seconds()
	if !p.drawn || p.sinceRedraw >= p.redrawEvery {
		// Uniform draw over the disk of radius dMax.
		r := p.dMax * math.Sqrt(p.rng.Float64())
		theta := p.rng.Float64() * 2 * math.Pi
		p.offset = Vec3{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
		p.sinceRedraw = 0
		p.drawn = true
	}
	return p.bounds.Clamp(c.Add(p.offset))
}

//
// ---------- Random directional ----------
//

// RandomDirectional moves in a fixed heading until an exponentially
// distributed dwell time elapses, then redraws the heading. It reflects
// off area boundaries by mirroring the heading component that would exit
// the bound.
type RandomDirectional struct {
	bounds       Bounds
	speedMps     float64
	meanDwellSec float64
	rng          *rand.Rand

	cur        Vec3
	dirX, dirY float64 // unit heading
	dwellLeft  float64 // seconds
}

// NewRandomDirectional validates the directional parameters.
func NewRandomDirectional(bounds Bounds, start Vec3, speedMps float64, meanDwell time.Duration, seed int64) (*RandomDirectional, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: empty area bounds", ErrInvalidMobilityParameters)
	}
	if speedMps <= 0 {
		return nil, fmt.Errorf("%w: directional speed %.2f m/s must be positive", ErrInvalidMobilityParameters, speedMps)
	}
	if meanDwell <= 0 {
		return nil, fmt.Errorf("%w: mean dwell %s must be positive", ErrInvalidMobilityParameters, meanDwell)
	}
	if !bounds.Contains(start) {
		return nil, fmt.Errorf("%w: start position outside bounds", ErrInvalidMobilityParameters)
	}
	p := &RandomDirectional{
		bounds:       bounds,
		speedMps:     speedMps,
		meanDwellSec: meanDwell.Seconds(),
		rng:          rand.New(rand.NewSource(seed)),
		cur:          start,
	}
	p.redraw()
	return p, nil
}

func (p *RandomDirectional) redraw() {
	theta := p.rng.Float64() * 2 * math.Pi
	p.dirX = math.Cos(theta)
	p.dirY = math.Sin(theta)
	p.dwellLeft = p.rng.ExpFloat64() * p.meanDwellSec
}

func (p *RandomDirectional) Advance(dt time.Duration) Vec3 {
	sec := dt.Seconds()
	for sec > 0 {
		step := math.Min(sec, p.dwellLeft)
		p.move(step)
		p.dwellLeft -= step
		sec -= step
		if p.dwellLeft <= 0 {
			p.redraw()
		}
	}
	return p.cur
}

// move advances for t seconds, reflecting off the bounds. The reflection
// loop handles steps longer than the area extent.
func (p *RandomDirectional) move(t float64) {
	x := p.cur.X + p.dirX*p.speedMps*t
	y := p.cur.Y + p.dirY*p.speedMps*t

	for x < p.bounds.MinX || x > p.bounds.MaxX {
		if x < p.bounds.MinX {
			x = 2*p.bounds.MinX - x
		} else {
			x = 2*p.bounds.MaxX - x
		}
		p.dirX = -p.dirX
	}
	for y < p.bounds.MinY || y > p.bounds.MaxY {
		if y < p.bounds.MinY {
			y = 2*p.bounds.MinY - y
		} else {
			y = 2*p.bounds.MaxY - y
		}
		p.dirY = -p.dirY
	}
	p.cur = Vec3{X: x, Y: y}
}

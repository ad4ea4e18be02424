// Package physics adapts the Box2D rigid-body engine to the handful of operations
// soft bodies need: point masses, distance joints, per-body forces and contacts.
//
// Bodies and joints live in an arena owned by World and are referenced by integer
// handles, so morphologies never hold engine pointers directly.
package physics

import (
	"sync"

	"github.com/ByteArena/box2d"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/squish/config"
)

// MassID indexes a dynamic point mass in a World.
type MassID int

// JointID indexes a distance joint in a World.
type JointID int

// MassDef describes a circular point mass.
type MassDef struct {
	Radius   float64
	Density  float64
	Friction float64
	Angle    float64
}

// SpringDef describes a soft distance joint.
type SpringDef struct {
	FrequencyHz      float64
	DampingRatio     float64
	CollideConnected bool
}

// World owns one Box2D world and every body and joint created in it.
// A World must not be shared between goroutines.
type World struct {
	world    box2d.B2World
	dt       float64
	velIters int
	posIters int

	masses    []*box2d.B2Body
	joints    []*box2d.B2DistanceJoint
	jointEnds [][2]MassID
	statics   []*box2d.B2Body
}

var warmUp sync.Once

// warmUpContacts makes box2d build its package-level contact-register table. The
// table is filled lazily on the first contact anywhere in the process, behind an
// unexported flag, so the first contact must happen before worlds run concurrently.
func warmUpContacts() {
	world := box2d.MakeB2World(box2d.MakeB2Vec2(0, -10))
	for _, x := range []float64{0, 0.5} {
		bd := box2d.MakeB2BodyDef()
		bd.Type = box2d.B2BodyType.B2_dynamicBody
		bd.Position.Set(x, 0)
		body := world.CreateBody(&bd)

		shape := box2d.MakeB2CircleShape()
		shape.M_radius = 1
		fd := box2d.MakeB2FixtureDef()
		fd.Shape = &shape
		fd.Density = 1
		body.CreateFixtureFromDef(&fd)
	}
	world.Step(1.0/60, 1, 1)
	world.Destroy()
}

// NewWorld creates an empty world using the physics section of cfg.
func NewWorld(cfg *config.Config) *World {
	warmUp.Do(warmUpContacts)
	w := &World{
		world:    box2d.MakeB2World(box2d.MakeB2Vec2(0, cfg.Physics.GravityY)),
		dt:       cfg.Derived.DT,
		velIters: cfg.Physics.VelocityIterations,
		posIters: cfg.Physics.PositionIterations,
	}
	w.world.SetAllowSleeping(true)
	return w
}

// AddMass creates a dynamic circular body at pos.
func (w *World) AddMass(pos r2.Vec, def MassDef) MassID {
	bd := box2d.MakeB2BodyDef()
	bd.Type = box2d.B2BodyType.B2_dynamicBody
	bd.Position.Set(pos.X, pos.Y)
	bd.Angle = def.Angle
	body := w.world.CreateBody(&bd)

	shape := box2d.MakeB2CircleShape()
	shape.M_radius = def.Radius
	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Density = def.Density
	fd.Friction = def.Friction
	body.CreateFixtureFromDef(&fd)

	w.masses = append(w.masses, body)
	return MassID(len(w.masses) - 1)
}

// AddSpring connects two masses with a distance joint anchored at their current centers.
// The joint's rest length is the current distance between them.
func (w *World) AddSpring(a, b MassID, def SpringDef) JointID {
	bodyA, bodyB := w.masses[a], w.masses[b]

	jd := box2d.MakeB2DistanceJointDef()
	jd.Initialize(bodyA, bodyB, bodyA.GetPosition(), bodyB.GetPosition())
	jd.FrequencyHz = def.FrequencyHz
	jd.DampingRatio = def.DampingRatio
	jd.CollideConnected = def.CollideConnected

	joint := w.world.CreateJoint(&jd).(*box2d.B2DistanceJoint)
	w.joints = append(w.joints, joint)
	w.jointEnds = append(w.jointEnds, [2]MassID{a, b})
	return JointID(len(w.joints) - 1)
}

// NumMasses returns the number of dynamic masses created so far.
func (w *World) NumMasses() int { return len(w.masses) }

// Position returns the center of a mass.
func (w *World) Position(id MassID) r2.Vec {
	p := w.masses[id].GetPosition()
	return r2.Vec{X: p.X, Y: p.Y}
}

// Velocity returns the linear velocity of a mass.
func (w *World) Velocity(id MassID) r2.Vec {
	v := w.masses[id].GetLinearVelocity()
	return r2.Vec{X: v.X, Y: v.Y}
}

// Contacts counts the touching contacts of a mass.
func (w *World) Contacts(id MassID) int {
	n := 0
	for edge := w.masses[id].GetContactList(); edge != nil; edge = edge.Next {
		if edge.Contact != nil && edge.Contact.IsTouching() {
			n++
		}
	}
	return n
}

// ApplyForce applies a force at the center of a mass. Forces accumulate until the
// next Step, which consumes and clears them.
func (w *World) ApplyForce(id MassID, f r2.Vec) {
	w.masses[id].ApplyForceToCenter(box2d.MakeB2Vec2(f.X, f.Y), true)
}

// JointLength returns the target length of a joint.
func (w *World) JointLength(id JointID) float64 {
	return w.joints[id].GetLength()
}

// SetJointLength changes the target length of a joint.
func (w *World) SetJointLength(id JointID, length float64) {
	w.joints[id].SetLength(length)
}

// JointMasses returns the two masses a joint connects.
func (w *World) JointMasses(id JointID) (MassID, MassID) {
	ends := w.jointEnds[id]
	return ends[0], ends[1]
}

// AddEdge creates a static line segment.
func (w *World) AddEdge(a, b r2.Vec, friction float64) {
	bd := box2d.MakeB2BodyDef()
	body := w.world.CreateBody(&bd)

	shape := box2d.MakeB2EdgeShape()
	shape.Set(box2d.MakeB2Vec2(a.X, a.Y), box2d.MakeB2Vec2(b.X, b.Y))
	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Friction = friction
	body.CreateFixtureFromDef(&fd)

	w.statics = append(w.statics, body)
}

// AddBox creates a static box with half extents hx, hy centered at pos and rotated by angle.
func (w *World) AddBox(pos r2.Vec, hx, hy, angle, friction float64) {
	bd := box2d.MakeB2BodyDef()
	bd.Position.Set(pos.X, pos.Y)
	bd.Angle = angle
	body := w.world.CreateBody(&bd)

	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(hx, hy)
	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Friction = friction
	body.CreateFixtureFromDef(&fd)

	w.statics = append(w.statics, body)
}

// AddPolygon creates a static convex polygon with vertices local to pos.
func (w *World) AddPolygon(pos r2.Vec, vertices []r2.Vec, friction float64) {
	bd := box2d.MakeB2BodyDef()
	bd.Position.Set(pos.X, pos.Y)
	body := w.world.CreateBody(&bd)

	verts := make([]box2d.B2Vec2, len(vertices))
	for i, v := range vertices {
		verts[i] = box2d.MakeB2Vec2(v.X, v.Y)
	}
	shape := box2d.MakeB2PolygonShape()
	shape.Set(verts, len(verts))
	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Friction = friction
	body.CreateFixtureFromDef(&fd)

	w.statics = append(w.statics, body)
}

// Step advances the world by one tick.
func (w *World) Step() {
	w.world.Step(w.dt, w.velIters, w.posIters)
}

// DT returns the fixed tick duration in seconds.
func (w *World) DT() float64 { return w.dt }

// Destroy removes every joint and body. The World must not be used afterwards.
func (w *World) Destroy() {
	for _, j := range w.joints {
		w.world.DestroyJoint(j)
	}
	for _, b := range w.masses {
		w.world.DestroyBody(b)
	}
	for _, b := range w.statics {
		w.world.DestroyBody(b)
	}
	w.joints = nil
	w.jointEnds = nil
	w.masses = nil
	w.statics = nil
}

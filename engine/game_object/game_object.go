package game_object

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/model"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/go-gl/mathgl/mgl32"
)

// ObjectType tags the render objects owned by game objects.
const ObjectType rendering.ObjectType = "mesh"

type gameObject struct {
	mu *sync.Mutex

	id      uint64
	enabled bool
	mdl     model.Model
	group   rendering.RenderGroup

	position      mgl32.Vec3
	scale         mgl32.Vec3
	rotation      mgl32.Vec3 // euler angles in radians, applied X then Y then Z
	rotationSpeed mgl32.Vec3 // radians per second

	world      mgl32.Mat4
	worldDirty bool

	renderObject *rendering.RenderObject
}

// GameObject is a placed instance of a Model. It owns one RenderObject whose Source is the game
// object itself, so the pipeline reads the world matrix through WorldMatrix and draws through Draw.
//
// Transform setters may be called from any goroutine. The render object fields the visibility
// group reads directly (enabled state, world bounds) only change in Sync, which belongs on the
// render goroutine before the frame starts.
type GameObject interface {
	// ID returns the object's identifier.
	//
	// Returns:
	//   - uint64: the object ID
	ID() uint64

	// Enabled returns whether this object is enabled for rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// Model returns the Model drawn by this object, or nil if not set.
	//
	// Returns:
	//   - model.Model: the associated model or nil
	Model() model.Model

	// Position returns the world position.
	//
	// Returns:
	//   - mgl32.Vec3: the position
	Position() mgl32.Vec3

	// Rotation returns the euler rotation in radians.
	//
	// Returns:
	//   - mgl32.Vec3: rotation around X, Y and Z
	Rotation() mgl32.Vec3

	// RotationSpeed returns the angular velocity applied by Update.
	//
	// Returns:
	//   - mgl32.Vec3: radians per second around X, Y and Z
	RotationSpeed() mgl32.Vec3

	// Scale returns the per-axis scale.
	//
	// Returns:
	//   - mgl32.Vec3: the scale factors
	Scale() mgl32.Vec3

	// WorldMatrix returns translation * rotation * scale.
	//
	// Returns:
	//   - mgl32.Mat4: the model-to-world matrix
	WorldMatrix() mgl32.Mat4

	// RenderObject returns the render object to add to a visibility group or compositor.
	//
	// Returns:
	//   - *rendering.RenderObject: the render object
	RenderObject() *rendering.RenderObject

	// Draw records the model's draw call. Objects without an uploaded model draw nothing.
	//
	// Parameters:
	//   - cl: the command list to record into
	Draw(cl gpu.CommandList)

	// Update advances the rotation by RotationSpeed over dt seconds.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Update(dt float32)

	// Sync copies the enabled state and the world-space bounds into the render object.
	Sync()

	// SetID sets the object's identifier.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id uint64)

	// SetEnabled sets whether the object is enabled for rendering. Takes effect on the next Sync.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetModel assigns the Model drawn by this object.
	//
	// Parameters:
	//   - m: the Model to associate
	SetModel(m model.Model)

	// SetPosition sets the world position.
	//
	// Parameters:
	//   - position: the new position
	SetPosition(position mgl32.Vec3)

	// SetRotation sets the euler rotation in radians.
	//
	// Parameters:
	//   - rotation: rotation around X, Y and Z
	SetRotation(rotation mgl32.Vec3)

	// SetRotationSpeed sets the angular velocity applied by Update.
	//
	// Parameters:
	//   - speed: radians per second around X, Y and Z
	SetRotationSpeed(speed mgl32.Vec3)

	// SetScale sets the per-axis scale.
	//
	// Parameters:
	//   - scale: the new scale factors
	SetScale(scale mgl32.Vec3)
}

var (
	_ GameObject         = &gameObject{}
	_ rendering.Drawable = &gameObject{}
)

// NewGameObject creates an enabled GameObject at the origin with unit scale and syncs its render
// object once.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		mu:         &sync.Mutex{},
		enabled:    true,
		scale:      mgl32.Vec3{1, 1, 1},
		worldDirty: true,
	}
	for _, option := range options {
		option(obj)
	}
	obj.renderObject = rendering.NewRenderObject(ObjectType, obj)
	obj.renderObject.RenderGroup = obj.group
	obj.Sync()
	return obj
}

func (g *gameObject) ID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *gameObject) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

func (g *gameObject) Model() model.Model {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mdl
}

func (g *gameObject) Position() mgl32.Vec3 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

func (g *gameObject) Rotation() mgl32.Vec3 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotation
}

func (g *gameObject) RotationSpeed() mgl32.Vec3 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotationSpeed
}

func (g *gameObject) Scale() mgl32.Vec3 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scale
}

func (g *gameObject) WorldMatrix() mgl32.Mat4 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.worldMatrix()
}

// worldMatrix rebuilds the cached matrix when the transform changed. Caller must hold the mutex.
func (g *gameObject) worldMatrix() mgl32.Mat4 {
	if g.worldDirty {
		rot := mgl32.AnglesToQuat(g.rotation.X(), g.rotation.Y(), g.rotation.Z(), mgl32.XYZ).Mat4()
		g.world = mgl32.Translate3D(g.position.X(), g.position.Y(), g.position.Z()).
			Mul4(rot).
			Mul4(mgl32.Scale3D(g.scale.X(), g.scale.Y(), g.scale.Z()))
		g.worldDirty = false
	}
	return g.world
}

func (g *gameObject) RenderObject() *rendering.RenderObject {
	return g.renderObject
}

func (g *gameObject) Draw(cl gpu.CommandList) {
	if m := g.Model(); m != nil {
		m.Draw(cl)
	}
}

func (g *gameObject) Update(dt float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rotationSpeed == (mgl32.Vec3{}) {
		return
	}
	g.rotation = g.rotation.Add(g.rotationSpeed.Mul(dt))
	g.worldDirty = true
}

func (g *gameObject) Sync() {
	g.mu.Lock()
	defer g.mu.Unlock()
	ro := g.renderObject
	ro.Enabled = g.enabled && g.mdl != nil
	if g.mdl != nil {
		ro.BoundingBox = g.mdl.BoundingBox().Transform(g.worldMatrix())
	}
}

func (g *gameObject) SetID(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

func (g *gameObject) SetModel(m model.Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mdl = m
}

func (g *gameObject) SetPosition(position mgl32.Vec3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position = position
	g.worldDirty = true
}

func (g *gameObject) SetRotation(rotation mgl32.Vec3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = rotation
	g.worldDirty = true
}

func (g *gameObject) SetRotationSpeed(speed mgl32.Vec3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = speed
}

func (g *gameObject) SetScale(scale mgl32.Vec3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = scale
	g.worldDirty = true
}

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/camera"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/compositor"
	"github.com/pkg/errors"
)

// ErrAlreadyStarted is returned by Run on an engine that has been run before.
var ErrAlreadyStarted = errors.New("engine: already started")

// engine implements the Engine interface.
// Coordinates the tick and render goroutines around a single compositor.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // dynamic tick rate updates while running

	started bool
	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	compositor *compositor.Compositor
	camera     camera.Camera

	engineTickRate    time.Duration
	tickCallback      func(deltaTime float32)
	preRenderCallback func(deltaTime float32)
	renderCallback    func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	frameCount       uint64        // frames to render before quitting; 0 = until Quit

	err error
}

// Engine runs the frame loop. A tick goroutine fires the tick callback at a fixed rate for
// simulation updates while a render goroutine pushes frames through the compositor as fast as
// the frame limit allows.
type Engine interface {
	// Compositor returns the compositor rendered every frame.
	//
	// Returns:
	//   - *compositor.Compositor: the compositor
	Compositor() *compositor.Compositor

	// Camera returns the camera updated before every frame, nil when none is attached.
	//
	// Returns:
	//   - camera.Camera: the camera or nil
	Camera() camera.Camera

	// SetTickRate sets the engine tick rate in ticks per second.
	// The change takes effect immediately on a running engine.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for simulation, input processing and camera movement.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetPreRenderCallback registers the function called on the render goroutine before each
	// frame. Use this to sync object state (enabled flags, bounds) into render objects.
	//
	// Parameters:
	//   - callback: function to call before each frame, receiving the delta time in seconds
	SetPreRenderCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Frames returns the number of frames the compositor has completed.
	//
	// Returns:
	//   - uint64: completed frames
	Frames() uint64

	// Run starts the tick and render goroutines and blocks until Quit is called, ctx is done,
	// the configured frame count is reached or a frame fails. An engine runs once.
	//
	// Parameters:
	//   - ctx: stops the engine when done
	//
	// Returns:
	//   - error: the first frame error or recovered panic, ctx.Err() when ctx stopped the engine,
	//     or ErrAlreadyStarted
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine rendering through the given compositor.
// Panics if c is nil.
//
// Parameters:
//   - c: the compositor that renders each frame
//   - options: functional options for engine configuration (tick rate, frame limit, camera, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(c *compositor.Compositor, options ...EngineBuilderOption) Engine {
	if c == nil {
		panic("engine: compositor is required")
	}
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		compositor:      c,
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.camera != nil && e.camera.RenderView() == nil {
		e.camera.SetRenderView(c.MainView())
	}
	return e
}

func (e *engine) Compositor() *compositor.Compositor {
	return e.compositor
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Frames() uint64 {
	return e.compositor.Frames()
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started, e.running = true, true
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	common.Logger().Info("engine started", "tickRate", e.engineTickRate, "frameLimit", e.renderFrameLimit)
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender(ctx)
	go e.handleQuit(ctx)
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	err := e.err
	e.mu.Unlock()

	common.Logger().Info("engine stopped", "frames", e.compositor.Frames())
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// fail records the first error of the run and stops the engine.
func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	common.Logger().Error("engine frame failed", "error", err)
	e.signalQuit()
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Each iteration updates the camera, fires the pre-render callback, renders one compositor frame
// and fires the render callback.
// A frame error or a recovered panic stops the engine and is returned from Run.
func (e *engine) handleRender(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.fail(errors.Errorf("engine: render goroutine panic: %v", r))
		}
	}()

	lastRender := time.Now()
	var rendered uint64

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if e.camera != nil {
			e.camera.Update()
		}
		if e.preRenderCallback != nil {
			e.preRenderCallback(dt)
		}

		if err := e.compositor.RenderFrame(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.fail(err)
			return
		}
		rendered++

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.frameCount > 0 && rendered >= e.frameCount {
			e.signalQuit()
			return
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
				select {
				case <-e.quitChannel:
					return
				case <-time.After(remaining):
				}
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed or ctx is done.
func (e *engine) handleQuit(ctx context.Context) {
	defer e.wg.Done()
	select {
	case <-e.quitChannel:
	case <-ctx.Done():
		e.signalQuit()
	}
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Replace any pending update so the latest rate wins.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetPreRenderCallback registers the function called before each render frame.
func (e *engine) SetPreRenderCallback(callback func(deltaTime float32)) {
	e.preRenderCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

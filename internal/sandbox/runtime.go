package sandbox

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

//go:embed prelude.js
var preludeJS string

// entryPoints are the exports every plugin script must provide.
var entryPoints = []string{"listLibrary", "fetchDetail", "fetchChapterPages"}

const defaultInvokeTimeout = 30 * time.Second

// maxConsecutiveTimeouts is how many invocations in a row may time out
// while the VM is idle before the instance is retired anyway.
const maxConsecutiveTimeouts = 3

// instance is one live VM. All VM access happens on its loop goroutine;
// the bridge posts responses as loop jobs, so concurrent in-flight
// requests resolve without blocking each other.
type instance struct {
	pluginID string
	vm       *goja.Runtime
	bridge   *Bridge
	deliver  goja.Callable

	jobs      chan func()
	done      chan struct{}
	dead      atomic.Bool
	busy      atomic.Bool
	timeouts  atomic.Int32
	closeOnce sync.Once
}

func newInstance(pluginID, script string, config map[string]string, storage Storage) (*instance, error) {
	i := &instance{
		pluginID: pluginID,
		jobs:     make(chan func(), 128),
		done:     make(chan struct{}),
	}
	i.bridge = NewBridge(NewHost(pluginID, storage), func(id int64, ok bool, payload string) {
		i.post(func() {
			i.deliver(goja.Undefined(), i.vm.ToValue(id), i.vm.ToValue(ok), i.vm.ToValue(payload))
		})
	})

	go i.loop()

	setupErr := make(chan error, 1)
	i.post(func() {
		setupErr <- i.setup(script, config)
	})
	if err := <-setupErr; err != nil {
		i.close()
		return nil, err
	}
	return i, nil
}

func (i *instance) loop() {
	for {
		select {
		case job := <-i.jobs:
			i.runJob(job)
		case <-i.done:
			return
		}
	}
}

func (i *instance) runJob(job func()) {
	i.busy.Store(true)
	defer func() {
		i.busy.Store(false)
		if r := recover(); r != nil {
			log.Printf("[%s] sandbox job panic: %v", i.pluginID, r)
			i.dead.Store(true)
		}
	}()
	job()
}

// post schedules a job on the loop goroutine. Returns false once the
// instance is gone.
func (i *instance) post(job func()) bool {
	select {
	case i.jobs <- job:
		return true
	case <-i.done:
		return false
	}
}

// setup builds the VM: the single outbound channel, the prelude, then
// the plugin script inside a CommonJS-style wrapper.
func (i *instance) setup(script string, config map[string]string) error {
	vm := goja.New()
	i.vm = vm

	vm.Set("__send", func(call goja.FunctionCall) goja.Value {
		id, err := i.bridge.Send(call.Argument(0).String())
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(id)
	})

	if _, err := vm.RunString(preludeJS); err != nil {
		return fmt.Errorf("failed to load sandbox prelude: %w", err)
	}

	deliverFn, ok := goja.AssertFunction(vm.Get("__deliver"))
	if !ok {
		return fmt.Errorf("sandbox prelude is missing __deliver")
	}
	i.deliver = deliverFn

	configObj := vm.NewObject()
	for k, v := range config {
		configObj.Set(k, v)
	}
	vm.Set("config", configObj)

	exports := vm.NewObject()
	vm.Set("exports", exports)

	wrapped := fmt.Sprintf("(function(exports, host, config) {\n%s\n})(exports, host, config);", script)
	if _, err := vm.RunString(wrapped); err != nil {
		return fmt.Errorf("failed to execute plugin script: %w", err)
	}

	exportsObj := vm.Get("exports").ToObject(vm)
	for _, name := range entryPoints {
		fn := exportsObj.Get(name)
		if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
			return fmt.Errorf("plugin script missing required export %q", name)
		}
	}
	return nil
}

// invoke calls one exported entry point with a deadline. A promise
// result is awaited. An exceeded deadline fails only the invocation;
// the instance is retired when the deadline catches the VM mid-script
// (interrupting leaves it in an unknown state) or after too many
// timeouts in a row.
func (i *instance) invoke(ctx context.Context, entry string, timeout time.Duration, args ...any) (any, error) {
	if i.dead.Load() {
		return nil, &Error{PluginID: i.pluginID, Entry: entry, Message: "instance is dead", IsCrash: true}
	}

	resCh := make(chan any, 1)
	errCh := make(chan error, 1)

	posted := i.post(func() {
		defer func() {
			if r := recover(); r != nil {
				i.dead.Store(true)
				errCh <- &Error{PluginID: i.pluginID, Entry: entry,
					Message: fmt.Sprintf("panic: %v", r), IsCrash: true}
			}
		}()

		fn := i.vm.Get("exports").ToObject(i.vm).Get(entry)
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			errCh <- &Error{PluginID: i.pluginID, Entry: entry, Message: "export is not callable"}
			return
		}

		gojaArgs := make([]goja.Value, len(args))
		for idx, arg := range args {
			gojaArgs[idx] = i.vm.ToValue(arg)
		}

		val, err := callable(goja.Undefined(), gojaArgs...)
		if err != nil {
			errCh <- &Error{PluginID: i.pluginID, Entry: entry, Message: err.Error(), Cause: err}
			return
		}
		if !i.awaitPromise(val, resCh, errCh, entry) {
			resCh <- val.Export()
		}
	})
	if !posted {
		return nil, &Error{PluginID: i.pluginID, Entry: entry, Message: "instance closed", IsCrash: true}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		i.timeouts.Store(0)
		return res, nil
	case err := <-errCh:
		i.timeouts.Store(0)
		return nil, err
	case <-ctx.Done():
		// Abandoned, not awaited. The eventual result is discarded.
		return nil, ctx.Err()
	case <-timer.C:
		timeoutErr := &Error{PluginID: i.pluginID, Entry: entry,
			Message: fmt.Sprintf("timeout after %s", timeout), IsTimeout: true}
		if i.busy.Load() {
			// Stuck inside synchronous script code. Interrupt is the only
			// way out, and the VM cannot be trusted afterwards.
			i.dead.Store(true)
			i.vm.Interrupt("invocation timeout")
			i.close()
			return nil, timeoutErr
		}
		// The VM is idle, waiting on a promise that never settled. Keep
		// the instance; a late settlement is discarded by awaitPromise.
		if i.timeouts.Add(1) >= maxConsecutiveTimeouts {
			i.close()
		}
		return nil, timeoutErr
	}
}

// awaitPromise attaches continuation handlers if val is thenable. The
// handlers run as loop microtasks once a bridge response resolves the
// chain. Returns false when val is a plain value.
func (i *instance) awaitPromise(val goja.Value, resCh chan any, errCh chan error, entry string) bool {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return false
	}
	obj := val.ToObject(i.vm)
	if obj == nil {
		return false
	}
	thenFn, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		return false
	}

	var settled bool
	resolve := i.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if !settled {
			settled = true
			resCh <- call.Argument(0).Export()
		}
		return goja.Undefined()
	})
	reject := i.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if !settled {
			settled = true
			msg := "unknown error"
			if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
				msg = v.String()
			}
			errCh <- &Error{PluginID: i.pluginID, Entry: entry, Message: msg}
		}
		return goja.Undefined()
	})

	if _, err := thenFn(obj, resolve, reject); err != nil {
		errCh <- &Error{PluginID: i.pluginID, Entry: entry, Message: "failed to await promise", Cause: err}
	}
	return true
}

// close stops the loop and fails all pending bridge requests as
// cancelled. Responses arriving afterwards are dropped, never delivered
// to a replacement instance.
func (i *instance) close() {
	i.closeOnce.Do(func() {
		i.dead.Store(true)
		close(i.done)
		i.bridge.Teardown()
	})
}

// Sandbox is the public handle for one script plugin. The underlying
// instance is created on first use and recreated lazily after a crash
// or timeout kill; persisted key-value state survives recreation.
type Sandbox struct {
	pluginID string
	script   string
	config   map[string]string
	storage  Storage
	timeout  time.Duration

	mu     sync.Mutex
	inst   *instance
	closed bool
}

// New prepares a sandbox. The script is not executed until the first
// invocation.
func New(pluginID, script string, config map[string]string, storage Storage) *Sandbox {
	return &Sandbox{
		pluginID: pluginID,
		script:   script,
		config:   config,
		storage:  storage,
		timeout:  defaultInvokeTimeout,
	}
}

// SetTimeout overrides the per-invocation deadline.
func (s *Sandbox) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Invoke runs one exported entry point, creating or recreating the VM
// as needed.
func (s *Sandbox) Invoke(ctx context.Context, entry string, args ...any) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &Error{PluginID: s.pluginID, Entry: entry, Message: "sandbox closed", IsCrash: true}
	}
	if s.inst == nil || s.inst.dead.Load() {
		if s.inst != nil {
			s.inst.close()
			log.Printf("[%s] recreating sandbox instance", s.pluginID)
		}
		inst, err := newInstance(s.pluginID, s.script, s.config, s.storage)
		if err != nil {
			s.mu.Unlock()
			return nil, &Error{PluginID: s.pluginID, Entry: entry,
				Message: "failed to start instance", Cause: err, IsCrash: true}
		}
		s.inst = inst
	}
	inst := s.inst
	s.mu.Unlock()

	return inst.invoke(ctx, entry, s.timeout, args...)
}

// UpdateConfig replaces the config snapshot for future instances and
// retires the current one.
func (s *Sandbox) UpdateConfig(config map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	if s.inst != nil {
		s.inst.close()
		s.inst = nil
	}
}

// Close tears the sandbox down permanently.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.inst != nil {
		s.inst.close()
		s.inst = nil
	}
	return nil
}

// Package script provides a server-side JavaScript sandbox backed by a pool
// of goja VMs. Quest content uses it for scripted requirements: boolean
// expressions evaluated with the player bound as $player.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/kasuganosora/rpgquest/game/quest"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a script exceeds the execution time limit.
var ErrTimeout = errors.New("script: execution timed out")

// ErrPanic is returned when a script throws an uncaught exception.
var ErrPanic = errors.New("script: uncaught exception")

// ErrNotBoolean is returned by EvalBool when the expression does not yield a boolean.
var ErrNotBoolean = errors.New("script: result is not a boolean")

// Bindings are the globals injected into a VM for one run.
type Bindings map[string]func(vm *goja.Runtime) goja.Value

// VMPool is a thread-safe pool of pre-initialised goja runtimes.
type VMPool struct {
	pool    chan *goja.Runtime
	timeout time.Duration
	logger  *zap.Logger
	size    int
}

// NewVMPool creates a VMPool with the given concurrency size and per-script timeout.
func NewVMPool(size int, timeout time.Duration, logger *zap.Logger) *VMPool {
	if size <= 0 {
		size = 4
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	p := &VMPool{
		pool:    make(chan *goja.Runtime, size),
		timeout: timeout,
		logger:  logger,
		size:    size,
	}
	for i := 0; i < size; i++ {
		p.pool <- newSafeVM()
	}
	return p
}

// Run executes src inside a pooled VM with the given bindings.
// Returns the value of the last expression evaluated, or an error.
func (p *VMPool) Run(ctx context.Context, src string, b Bindings) (interface{}, error) {
	select {
	case vm := <-p.pool:
		// returnToPool is cleared by runVM when a timeout taints the VM.
		returnToPool := true
		defer func() {
			if returnToPool {
				p.pool <- vm
			}
		}()
		return p.runVM(vm, src, b, &returnToPool)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *VMPool) runVM(vm *goja.Runtime, src string, b Bindings, returnToPool *bool) (interface{}, error) {
	for name, bind := range b {
		vm.Set(name, bind(vm))
	}
	defer func() {
		// Bindings must not leak into the next caller's run.
		for name := range b {
			vm.Set(name, goja.Undefined())
		}
	}()

	timer := time.AfterFunc(p.timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer func() {
		timer.Stop()
		if *returnToPool {
			vm.ClearInterrupt()
		}
	}()

	var result goja.Value
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = ErrPanic
			}
		}()
		result, runErr = vm.RunString(src)
	}()

	if runErr != nil {
		var interrupted *goja.InterruptedError
		if errors.As(runErr, &interrupted) || errors.Is(runErr, ErrTimeout) {
			*returnToPool = false
			p.pool <- newSafeVM()
			return nil, ErrTimeout
		}
		var ex *goja.Exception
		if errors.As(runErr, &ex) {
			return nil, errors.New(ex.Error())
		}
		return nil, runErr
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	return result.Export(), nil
}

// newSafeVM creates a goja Runtime with dangerous globals removed.
func newSafeVM() *goja.Runtime {
	vm := goja.New()
	for _, name := range []string{"require", "process", "fetch", "XMLHttpRequest", "eval", "Function"} {
		vm.Set(name, goja.Undefined())
	}
	mathObj := vm.NewObject()
	_ = mathObj.Set("floor", func(v float64) float64 { return float64(int64(v)) })
	_ = mathObj.Set("ceil", func(v float64) float64 {
		n := int64(v)
		if float64(n) < v {
			n++
		}
		return float64(n)
	})
	_ = mathObj.Set("round", func(v float64) int64 { return int64(v + 0.5) })
	_ = mathObj.Set("abs", func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	})
	_ = mathObj.Set("max", func(a, b float64) float64 {
		if a > b {
			return a
		}
		return b
	})
	_ = mathObj.Set("min", func(a, b float64) float64 {
		if a < b {
			return a
		}
		return b
	})
	_ = mathObj.Set("random", func() float64 { return 0 }) // deterministic in server
	vm.Set("Math", mathObj)
	return vm
}

// playerObject exposes a read-only view of p.
//
//	$player.level >= 10 && $player.questStep(3) == 2 && $player.count("rat_tail") > 4
func playerObject(p quest.Player) func(vm *goja.Runtime) goja.Value {
	return func(vm *goja.Runtime) goja.Value {
		obj := vm.NewObject()
		pos := p.Position()
		_ = obj.Set("id", p.ObjectID())
		_ = obj.Set("name", p.Name())
		_ = obj.Set("level", p.Level())
		_ = obj.Set("gold", p.Attribute(quest.AttrGold))
		_ = obj.Set("classId", p.ClassID())
		_ = obj.Set("race", p.Race())
		_ = obj.Set("guild", p.GuildName())
		_ = obj.Set("region", pos.Region)
		_ = obj.Set("zone", p.Zone())
		_ = obj.Set("attr", func(name string) int64 {
			a, ok := quest.ParseAttribute(name)
			if !ok {
				panic(vm.NewTypeError("unknown attribute %q", name))
			}
			return p.Attribute(a)
		})
		_ = obj.Set("questStep", func(id int) int {
			return p.Journal().Step(quest.QuestID(id))
		})
		_ = obj.Set("finished", func(id int) int {
			return p.Journal().FinishedCount(quest.QuestID(id))
		})
		_ = obj.Set("count", func(itemID string) int {
			if inv := p.Inventory(); inv != nil {
				return inv.Count(itemID)
			}
			return 0
		})
		_ = obj.Set("equipped", func(itemID string) bool {
			if inv := p.Inventory(); inv != nil {
				return inv.IsEquipped(itemID)
			}
			return false
		})
		return obj
	}
}

// Sandbox wraps a VMPool and implements quest.ScriptRunner.
type Sandbox struct {
	pool   *VMPool
	logger *zap.Logger
}

// NewSandbox creates a Sandbox backed by a VMPool.
func NewSandbox(size int, timeout time.Duration, logger *zap.Logger) *Sandbox {
	return &Sandbox{
		pool:   NewVMPool(size, timeout, logger),
		logger: logger,
	}
}

// Eval executes src with the given bindings, returning the result.
func (sb *Sandbox) Eval(ctx context.Context, src string, b Bindings) (interface{}, error) {
	result, err := sb.pool.Run(ctx, src, b)
	if err != nil {
		sb.logger.Warn("script execution error",
			zap.String("src_preview", truncate(src, 80)),
			zap.Error(err))
	}
	return result, err
}

// EvalBool evaluates expr with p bound as $player. Waiting for a free VM is
// bounded by the pool timeout so the dispatch loop is never stalled.
func (sb *Sandbox) EvalBool(expr string, p quest.Player) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sb.pool.timeout)
	defer cancel()
	out, err := sb.Eval(ctx, expr, Bindings{"$player": playerObject(p)})
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("%w: %T", ErrNotBoolean, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

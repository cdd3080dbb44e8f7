// Package eventbus is an in-process publish/subscribe bus. Subscribers are
// plain functions matched against the published arguments by signature.
package eventbus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/pkg/serrors"
)

var (
	ErrNoSubscribers        = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")
	ErrInvalidHandlerReturn = serrors.NewError("EVENTBUS_INVALID_HANDLER_RETURN", "invalid handler return signature", "")
	ErrNotAFunction         = serrors.NewError("EVENTBUS_NOT_A_FUNCTION", "subscriber must be a function", "")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type Bus interface {
	// Publish calls every matching subscriber and logs failures.
	Publish(args ...any)
	// PublishE calls every matching subscriber and joins their errors,
	// including recovered panics.
	PublishE(args ...any) error
	Subscribe(handler any) error
	Unsubscribe(handler any)
	Len() int
}

type bus struct {
	log *logrus.Logger

	mu          sync.RWMutex
	subscribers []reflect.Value
}

func New(log *logrus.Logger) Bus {
	return &bus{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		param := t.In(i)
		if arg == nil {
			switch param.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
				continue
			default:
				return false
			}
		}
		if !reflect.TypeOf(arg).AssignableTo(param) {
			return false
		}
	}
	return true
}

func (b *bus) Subscribe(handler any) error {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("%w: got %T", ErrNotAFunction, handler)
	}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, v)
	b.mu.Unlock()
	return nil
}

func (b *bus) Unsubscribe(handler any) {
	target := reflect.ValueOf(handler)
	if target.Kind() != reflect.Func {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range b.subscribers {
		if v.Pointer() == target.Pointer() {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

func (b *bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *bus) Publish(args ...any) {
	if err := b.PublishE(args...); err != nil && b.log != nil {
		if errors.Is(err, ErrNoSubscribers) {
			b.log.Warnf("eventbus: no matching subscribers for %d args", len(args))
			return
		}
		b.log.WithError(err).Error("eventbus: subscriber failed")
	}
}

func (b *bus) PublishE(args ...any) error {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Value{}
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}

	b.mu.RLock()
	subscribers := append([]reflect.Value(nil), b.subscribers...)
	b.mu.RUnlock()

	matched := 0
	var errs []error
	for _, sub := range subscribers {
		if !MatchSignature(sub.Interface(), args) {
			continue
		}
		matched++
		if err := call(sub, withZeroes(sub.Type(), in)); err != nil {
			errs = append(errs, err)
		}
	}
	if matched == 0 {
		return ErrNoSubscribers
	}
	return errors.Join(errs...)
}

// withZeroes replaces nil arguments with the zero value of the parameter.
func withZeroes(t reflect.Type, in []reflect.Value) []reflect.Value {
	out := make([]reflect.Value, len(in))
	for i, v := range in {
		if !v.IsValid() {
			v = reflect.Zero(t.In(i))
		}
		out[i] = v
	}
	return out
}

func call(sub reflect.Value, in []reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: subscriber %s panicked: %v", sub.Type(), r)
		}
	}()

	out := sub.Call(in)
	switch {
	case len(out) == 0:
		return nil
	case len(out) > 1 || out[0].Type() != errorType:
		return fmt.Errorf("%w: subscriber %s", ErrInvalidHandlerReturn, sub.Type())
	case out[0].IsNil():
		return nil
	default:
		return out[0].Interface().(error)
	}
}

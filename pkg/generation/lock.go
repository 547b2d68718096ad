package generation

import "sync"

// Lock disables the generation controls while a request is outstanding.
type Lock struct {
	mu   sync.Mutex
	held bool
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *Lock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	return true
}

func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Progress is the shared progress indicator, in percent. The change
// callback runs outside of any coordinator lock and always receives the
// current value.
type Progress struct {
	mu       sync.Mutex
	value    int
	notifyMu sync.Mutex
	onChange func(int)
}

func (p *Progress) Set(v int) {
	p.store(v)
	p.notify()
}

func (p *Progress) store(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = v
}

func (p *Progress) notify() {
	if p.onChange == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.onChange(p.Value())
}

func (p *Progress) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

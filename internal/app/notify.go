package app

// Notifier is the outward UI surface. Rendering toasts and live
// regions is a collaborator's job; this subsystem only emits them.
type Notifier interface {
	// Toast shows a transient notification.
	Toast(t Toast)
	// Announce updates the polite live region for assistive technology.
	Announce(msg string)
	// Info shows a non-error notice (idle leave and similar).
	Info(msg string)
}

type Toast struct {
	Message   string `json:"message"`
	Duration  int    `json:"duration"`
	ClassName string `json:"className,omitempty"`
}

// NopNotifier discards everything, for callers without a UI.
type NopNotifier struct{}

func (NopNotifier) Toast(Toast)     {}
func (NopNotifier) Announce(string) {}
func (NopNotifier) Info(string)     {}

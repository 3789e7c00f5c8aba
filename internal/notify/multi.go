package notify

import (
	"context"
	"errors"
	"time"

	"github.com/vitechat/vitechat_server/internal/recording"
)

const publishTimeout = 5 * time.Second

// Multi delivers each event to every configured publisher. A failing
// publisher does not stop delivery to the others.
type Multi struct {
	publishers []recording.Notifier
}

func NewMulti(publishers ...recording.Notifier) *Multi {
	m := &Multi{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

func (m *Multi) Add(p recording.Notifier) {
	m.publishers = append(m.publishers, p)
}

func (m *Multi) Publish(ctx context.Context, event recording.Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package sdk

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = 30 * time.Second

// MessageSource answers reconciliation polls; *Client implements it
type MessageSource interface {
	MessagesSince(ctx context.Context, conversationId, since int64, limit int) (*MessagePage, error)
}

// Subscriber opens push subscriptions; *Stream implements it
type Subscriber interface {
	Subscribe(ctx context.Context, conversationId int64) (*Subscription, error)
}

// ViewOption configures a conversation view
type ViewOption func(*ConversationView)

// WithPollInterval sets the background poll interval
func WithPollInterval(d time.Duration) ViewOption {
	return func(v *ConversationView) {
		v.pollInterval = d
	}
}

// WithPageSize sets the page size used by polls
func WithPageSize(n int) ViewOption {
	return func(v *ConversationView) {
		v.pageSize = n
	}
}

// WithOnChange registers a callback run after new messages merge or read
// state changes. It runs on the view's goroutine.
func WithOnChange(fn func(*ConversationView)) ViewOption {
	return func(v *ConversationView) {
		v.onChange = fn
	}
}

// WithOnError registers a callback for poll and subscribe failures
func WithOnError(fn func(error)) ViewOption {
	return func(v *ConversationView) {
		v.onError = fn
	}
}

// ConversationView keeps a Timeline of one conversation current from both
// the push subscription and periodic polls. It polls on open, on an interval,
// and immediately whenever a push may have been missed.
type ConversationView struct {
	ConversationId int64

	source       MessageSource
	timeline     *Timeline
	pollInterval time.Duration
	pageSize     int
	onChange     func(*ConversationView)
	onError      func(error)

	mu  sync.Mutex
	sub *Subscription

	ctx      context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	pollMu   sync.Mutex
}

// OpenView loads the full history of a conversation and starts keeping it
// current. subscriber may be nil, in which case the view only polls; a failed
// subscription also leaves the view polling.
func OpenView(ctx context.Context, source MessageSource, subscriber Subscriber, conversationId int64, opts ...ViewOption) (*ConversationView, error) {
	v := &ConversationView{
		ConversationId: conversationId,
		source:         source,
		timeline:       NewTimeline(),
		pollInterval:   defaultPollInterval,
		ctx:            context.WithoutCancel(ctx),
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.poll(ctx); err != nil {
		return nil, err
	}

	if subscriber != nil {
		sub, err := subscriber.Subscribe(ctx, conversationId)
		if err != nil {
			v.reportError(err)
		} else {
			v.sub = sub
			// pushes sent between the first poll and the acknowledgement
			if err := v.poll(ctx); err != nil {
				v.reportError(err)
			}
		}
	}

	v.wg.Add(1)
	go v.run()
	return v, nil
}

// Timeline returns the view's timeline
func (v *ConversationView) Timeline() *Timeline {
	return v.timeline
}

// Messages returns the current snapshot ordered by (created_at, id)
func (v *ConversationView) Messages() []*Message {
	return v.timeline.Messages()
}

// Live reports whether the view still holds a push subscription
func (v *ConversationView) Live() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sub != nil
}

// Refresh polls immediately
func (v *ConversationView) Refresh(ctx context.Context) error {
	return v.poll(ctx)
}

// Close stops scheduling polls and ends the subscription. A poll already in
// flight still completes and merges before Close returns.
func (v *ConversationView) Close() error {
	var err error
	v.stopOnce.Do(func() {
		close(v.stop)
		v.wg.Wait()

		v.mu.Lock()
		sub := v.sub
		v.sub = nil
		v.mu.Unlock()
		if sub != nil {
			err = sub.Unsubscribe()
		}
	})
	return err
}

func (v *ConversationView) run() {
	defer v.wg.Done()

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	var (
		events <-chan Event
		missed <-chan struct{}
		ended  <-chan struct{}
	)
	v.mu.Lock()
	if v.sub != nil {
		events, missed, ended = v.sub.Events(), v.sub.Missed(), v.sub.Done()
	}
	v.mu.Unlock()

	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			v.backgroundPoll()
		case ev := <-events:
			v.apply(ev)
		case <-missed:
			v.backgroundPoll()
		case <-ended:
			// the push path is gone; poll now and keep polling
			v.mu.Lock()
			v.sub = nil
			v.mu.Unlock()
			events, missed, ended = nil, nil, nil
			v.backgroundPoll()
		}
	}
}

func (v *ConversationView) apply(ev Event) {
	changed := false
	switch ev.Kind {
	case EventMessage:
		changed = len(v.timeline.Merge(ev.Message)) > 0
	case EventRead:
		changed = v.timeline.ApplyRead(ev.Read) > 0
	}
	if changed && v.onChange != nil {
		v.onChange(v)
	}
}

// backgroundPoll runs detached from Close so an in-flight poll completes
func (v *ConversationView) backgroundPoll() {
	if err := v.poll(v.ctx); err != nil {
		v.reportError(err)
	}
}

// poll pages through everything after the watermark
func (v *ConversationView) poll(ctx context.Context) error {
	v.pollMu.Lock()
	defer v.pollMu.Unlock()

	changed := false
	for {
		since := v.timeline.Watermark()
		page, err := v.source.MessagesSince(ctx, v.ConversationId, since, v.pageSize)
		if err != nil {
			if changed && v.onChange != nil {
				v.onChange(v)
			}
			return err
		}
		if len(v.timeline.MergePolled(page.Messages)) > 0 {
			changed = true
		}
		if !page.HasMore || v.timeline.Watermark() <= since {
			break
		}
	}
	if changed && v.onChange != nil {
		v.onChange(v)
	}
	return nil
}

func (v *ConversationView) reportError(err error) {
	if v.onError != nil {
		v.onError(err)
	}
}

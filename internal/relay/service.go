package relay

import (
	"relaymail/internal/mailer"
	"relaymail/internal/replytext"
	"relaymail/internal/spam"
)

// Service bundles the relay components over one store.
type Service struct {
	Registry      *Registry
	Conversations *Conversations
	Messages      *Messages
	Sender        *Sender
	Processor     *Processor
}

type Option func(*options)

type options struct {
	counter   Counter
	extractor *replytext.Extractor
	detector  *spam.Detector
}

// WithCounter records relay activity, typically in Redis.
func WithCounter(c Counter) Option {
	return func(o *options) { o.counter = c }
}

func WithExtractor(e *replytext.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

func WithDetector(d *spam.Detector) Option {
	return func(o *options) { o.detector = d }
}

func New(cfg Config, store Store, dispatcher mailer.Dispatcher, opts ...Option) *Service {
	o := options{counter: nopCounter{}, extractor: replytext.New(), detector: spam.New()}
	for _, fn := range opts {
		fn(&o)
	}

	registry := NewRegistry(cfg, store, store)
	conversations := NewConversations(store, registry)
	messages := NewMessages(store)

	return &Service{
		Registry:      registry,
		Conversations: conversations,
		Messages:      messages,
		Sender: &Sender{
			cfg:           cfg,
			store:         store,
			conversations: conversations,
			messages:      messages,
			dispatcher:    dispatcher,
			counter:       o.counter,
		},
		Processor: &Processor{
			cfg:           cfg,
			store:         store,
			registry:      registry,
			conversations: conversations,
			messages:      messages,
			dispatcher:    dispatcher,
			extractor:     o.extractor,
			detector:      o.detector,
			counter:       o.counter,
		},
	}
}

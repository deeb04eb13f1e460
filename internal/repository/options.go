package repository

// Option настраивает хранилище.
type Option func(*settings)

type settings struct {
	outbox bool
}

// WithOutbox включает запись событий о покупках в outbox.
// Без издателя событий запись отключают, иначе таблица растёт бесконечно.
func WithOutbox(enabled bool) Option {
	return func(s *settings) { s.outbox = enabled }
}

func newSettings(opts []Option) settings {
	s := settings{outbox: true}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

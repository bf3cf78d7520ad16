package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Zerolog forwards connection events to a zerolog logger.
type Zerolog struct {
	logger *zerolog.Logger
	fields map[string]any
}

// Global returns a Zerolog writing through the global logger, including
// outputs installed by a later Apply.
func Global() *Zerolog {
	return &Zerolog{logger: &log.Logger}
}

// New returns a Zerolog writing to l.
func New(l zerolog.Logger) *Zerolog {
	return &Zerolog{logger: &l}
}

// With returns a copy that adds key to every event.
func (z *Zerolog) With(key string, value any) *Zerolog {
	fields := make(map[string]any, len(z.fields)+1)
	for k, v := range z.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Zerolog{logger: z.logger, fields: fields}
}

func (z *Zerolog) Debug(msg string) {
	z.logger.Debug().Fields(z.fields).Msg(msg)
}

func (z *Zerolog) Error(msg string, err error) {
	z.logger.Error().Fields(z.fields).Err(err).Msg(msg)
}

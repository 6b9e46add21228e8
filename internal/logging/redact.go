package logging

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/devaudit/internal/secrets"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// redactingEncoder hides values of sensitive keys and scrubs string values
// through the secrets redactor. Fields given at the call site arrive via
// EncodeEntry; fields bound with With arrive via the Add methods.
type redactingEncoder struct {
	zapcore.Encoder
	keys     map[string]struct{}
	redactor *secrets.Redactor
}

func newRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (zapcore.Encoder, error) {
	if !cfg.Enabled {
		return base, nil
	}
	e := &redactingEncoder{Encoder: base, keys: make(map[string]struct{}, len(cfg.Keys))}
	for _, k := range cfg.Keys {
		e.keys[strings.ToLower(k)] = struct{}{}
	}
	if cfg.Values {
		r, err := secrets.New(secrets.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to build log redactor: %w", err)
		}
		e.redactor = r
	}
	return e, nil
}

func (e *redactingEncoder) hidden(key string) bool {
	_, ok := e.keys[strings.ToLower(key)]
	return ok
}

func (e *redactingEncoder) scrub(field zapcore.Field) zapcore.Field {
	if e.hidden(field.Key) {
		return zap.String(field.Key, secrets.DefaultPlaceholder)
	}
	if !e.redactor.Enabled() {
		return field
	}
	switch field.Type {
	case zapcore.StringType:
		field.String = e.redactor.Redact(field.String)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return zap.String(field.Key, e.redactor.Redact(err.Error()))
		}
	}
	return field
}

func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clean := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		clean[i] = e.scrub(f)
	}
	ent.Message = e.redactor.Redact(ent.Message)
	return e.Encoder.EncodeEntry(ent, clean)
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.hidden(key) {
		val = secrets.DefaultPlaceholder
	}
	e.Encoder.AddString(key, e.redactor.Redact(val))
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	e.AddString(key, string(val))
}

func (e *redactingEncoder) AddBinary(key string, val []byte) {
	if e.hidden(key) {
		e.Encoder.AddString(key, secrets.DefaultPlaceholder)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val any) error {
	if e.hidden(key) {
		e.Encoder.AddString(key, secrets.DefaultPlaceholder)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.hidden(key) {
		e.Encoder.AddString(key, secrets.DefaultPlaceholder)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.hidden(key) {
		e.Encoder.AddString(key, secrets.DefaultPlaceholder)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, redactor: e.redactor}
}

package homework

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the poll loop can react without parsing text.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindPayload
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Msg is the operator-facing text.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is матчит ошибки по виду и тексту, чтобы работали сравнения с sentinel-ами.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

func ConfigError(msg string) *Error { return &Error{Kind: KindConfig, Msg: msg} }

func TransportError(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

func PayloadError(msg string, err error) *Error {
	return &Error{Kind: KindPayload, Msg: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrHomeworksMissing = PayloadError("Ответ API не соответствует ожидаемому: None", nil)
	ErrHomeworksNotList = PayloadError("Ответ API не соответствует ожидаемому: not list", nil)
	ErrHomeworkNotObj   = PayloadError("Ответ API не соответствует ожидаемому: not object", nil)
	ErrStatusMissing    = PayloadError("Нет статуса домашней работы", nil)
	ErrStatusUnknown    = PayloadError("Неожиданный статус домашней работы", nil)
	ErrNameMissing      = PayloadError("Нет имени домашней работы", nil)
)

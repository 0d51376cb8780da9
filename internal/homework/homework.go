// Package homework describes review statuses returned by the Practicum API:
// validation of the raw response and formatting of the notification text.
package homework

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type Status string

const (
	StatusApproved  Status = "approved"
	StatusReviewing Status = "reviewing"
	StatusRejected  Status = "rejected"
)

var verdicts = map[Status]string{
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusRejected:  "Работа проверена, в ней нашлись ошибки.",
}

// Verdict returns the localized text for s.
func Verdict(s Status) (string, bool) {
	v, ok := verdicts[s]
	return v, ok
}

// Homework is the most recent submission in an API response.
type Homework struct {
	Name   string
	Status Status
}

// Payload is a decoded JSON object as returned by the API.
type Payload map[string]any

// CheckResponse проверяет ответ API и возвращает первую работу из списка.
// Пустой список не ошибка: возвращается nil, nil.
func CheckResponse(ctx context.Context, payload Payload) (*Homework, error) {
	raw, ok := payload["homeworks"]
	if !ok || raw == nil {
		return nil, ErrHomeworksMissing
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, ErrHomeworksNotList
	}
	if len(list) == 0 {
		zerolog.Ctx(ctx).Debug().Msg("Нет домашних работ в ответе API")
		return nil, nil
	}

	// Смотрим только на первую (самую свежую) работу
	item, ok := list[0].(map[string]any)
	if !ok {
		return nil, ErrHomeworkNotObj
	}

	rawStatus, ok := item["status"].(string)
	if !ok {
		if item["status"] == nil {
			return nil, ErrStatusMissing
		}
		return nil, ErrStatusUnknown
	}
	status := Status(rawStatus)
	if _, known := verdicts[status]; !known {
		return nil, ErrStatusUnknown
	}

	name, ok := item["homework_name"]
	if !ok || name == nil {
		return nil, ErrNameMissing
	}

	return &Homework{Name: fmt.Sprint(name), Status: status}, nil
}

// ParseStatus formats the status-change message for hw.
func ParseStatus(hw Homework) (string, error) {
	verdict, ok := verdicts[hw.Status]
	if !ok {
		return "", PayloadError(fmt.Sprintf("Неизвестный статус %q", hw.Status), nil)
	}
	return fmt.Sprintf(`Изменился статус проверки работы "%s". %s`, hw.Name, verdict), nil
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Submission — единица работы, которую scheduler передаёт executor'у.
type Submission struct {
	// Key — идентичность попытки.
	Key TaskKey

	// Work — единица работы. Поддерживаемые формы:
	//   - []string — argv
	//   - Workload / *Workload — структурированный дескриптор
	//   - json.RawMessage — уже сериализованный дескриптор
	Work any

	// Env — дополнительные переменные окружения для worker'а.
	Env map[string]string

	// ResourceConfig — конфигурация ресурсов от scheduler'а.
	// Outpost не интерпретирует её, только логирует.
	ResourceConfig map[string]any
}

// ApplyWork заполняет Command или Workload в payload по форме Work.
func (s *Submission) ApplyWork(p *DispatchPayload) error {
	switch w := s.Work.(type) {
	case []string:
		if len(w) == 0 {
			return fmt.Errorf("%w: empty command", ErrUnsupportedWorkload)
		}
		p.Command = append([]string(nil), w...)
	case Workload:
		return applyRawWorkload(p, w.Raw)
	case *Workload:
		if w == nil {
			return fmt.Errorf("%w: nil workload", ErrUnsupportedWorkload)
		}
		return applyRawWorkload(p, w.Raw)
	case json.RawMessage:
		return applyRawWorkload(p, w)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedWorkload, s.Work)
	}
	return nil
}

func applyRawWorkload(p *DispatchPayload, raw json.RawMessage) error {
	if len(raw) == 0 || !json.Valid(raw) {
		return fmt.Errorf("%w: workload is not a JSON object", ErrUnsupportedWorkload)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: workload is not a JSON object", ErrUnsupportedWorkload)
	}
	p.Workload = append(json.RawMessage(nil), raw...)
	return nil
}

// InFlightTask — запись в InFlightSet executor'а.
type InFlightTask struct {
	// Key — исходная идентичность task от scheduler'а.
	Key TaskKey `json:"key"`

	// EncodedKey — канонический ключ в хранилище.
	EncodedKey string `json:"encoded_key"`

	// SubmittedAt — время успешного spawn.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Age возвращает время с момента dispatch.
func (t *InFlightTask) Age(now time.Time) time.Duration {
	return now.Sub(t.SubmittedAt)
}

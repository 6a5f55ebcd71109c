package domain

import "errors"

// Ошибки вызывающей стороны и конфигурации.
// Возвращаются синхронно, никогда не проглатываются.
var (
	// ErrMalformedKey — TaskKey нельзя закодировать или разобрать.
	ErrMalformedKey = errors.New("malformed task key")

	// ErrUnsupportedWorkload — единица работы неподдерживаемой формы.
	ErrUnsupportedWorkload = errors.New("unsupported workload")

	// ErrInvalidEndpoint — URL execution API пустой или не http(s).
	ErrInvalidEndpoint = errors.New("invalid execution api endpoint")

	// ErrEndpointNotConfigured — dispatch до разрешения endpoint'а.
	ErrEndpointNotConfigured = errors.New("execution api endpoint not configured")

	// ErrMalformedPayload — worker получил payload без ключа или работы.
	ErrMalformedPayload = errors.New("malformed dispatch payload")
)

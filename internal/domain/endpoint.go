package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultEndpointEnvVar — переменная, через которую worker получает
// адрес control API scheduler'а. Её же читает Resolver как override.
const DefaultEndpointEnvVar = "OUTPOST_EXECUTION_API_URL"

// ValidateEndpoint проверяет URL для обратных вызовов worker'ов.
// Допустимы только http:// и https:// с непустым host.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidEndpoint, endpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

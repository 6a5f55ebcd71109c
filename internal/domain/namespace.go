package domain

import "strings"

// Префиксы пространств имён во внешних системах.
const (
	NamespaceState    = "outpost-state"
	NamespaceDispatch = "outpost-dispatch"
	NamespaceLogs     = "outpost-logs"
)

// DefaultEnv — окружение по умолчанию, если OUTPOST_ENV не задан.
const DefaultEnv = "main"

// Namespace формирует имя "<prefix>-<env>".
func Namespace(prefix, env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		env = DefaultEnv
	}
	return prefix + "-" + env
}

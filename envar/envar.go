package envar

import "os"

const (
	KvmbridgeVerbose = "KVMBRIDGE_VERBOSE"
	KvmbridgeLogFile = "KVMBRIDGE_LOG_FILE"
)

func Getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

package slogx

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"strings"
)

// Error returns an attribute with the key "error" and the error's message as value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Stringer creates an attribute from the string form of value. A nil value, including a
// typed nil pointer, is logged as an empty string.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	if value == nil {
		return slog.String(key, "")
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return slog.String(key, "")
	}
	return slog.String(key, value.String())
}

// sensitiveHeaders are masked by Headers.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"Set-Cookie":          {},
	"X-Api-Key":           {},
	"Api-Key":             {},
}

// Headers renders h as a group of attributes sorted by name. Credentials are masked.
func Headers(key string, h http.Header) slog.Attr {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	attrs := make([]any, 0, len(names))
	for _, k := range names {
		if _, ok := sensitiveHeaders[http.CanonicalHeaderKey(k)]; ok {
			attrs = append(attrs, slog.String(k, "[redacted]"))
			continue
		}
		attrs = append(attrs, slog.String(k, strings.Join(h[k], ", ")))
	}
	return slog.Group(key, attrs...)
}

const (
	// KeyLoggerName is the key used for named loggers.
	KeyLoggerName = "logger"
)

// LoggerName returns an attribute for the logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

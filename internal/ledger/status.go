package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the top-level outcome of one fetch attempt.
type Kind int

const (
	// KindSuccess marks a response with status below 400.
	KindSuccess Kind = iota + 1
	// KindError marks an HTTP or network failure.
	KindError
	// KindFatal marks a local failure while handling the URL.
	KindFatal
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Category distinguishes the two flavours of KindError.
type Category string

const (
	// CategoryHTTP is a response with status >= 400.
	CategoryHTTP Category = "http_error"
	// CategoryNetwork is a request that produced no response at all.
	CategoryNetwork Category = "network_failure"
	// CategoryUnknown is used for rows written before categories existed.
	CategoryUnknown Category = "unknown"
)

const (
	successPrefix = "SUCCESS_"
	errorPrefix   = "ERROR_"
	fatalPrefix   = "FATAL_ERROR_"
)

// Status is the tagged outcome stored in the ledger's status column.
type Status struct {
	Kind     Kind
	Code     int
	Category Category
	Message  string
}

// Success builds a success status for an HTTP code.
func Success(code int) Status {
	return Status{Kind: KindSuccess, Code: code}
}

// Error builds an error status. The message is sanitized.
func Error(category Category, message string) Status {
	if category == "" {
		category = CategoryUnknown
	}
	return Status{Kind: KindError, Category: category, Message: SanitizeMessage(message)}
}

// Fatal builds a fatal status. The message is sanitized.
func Fatal(message string) Status {
	return Status{Kind: KindFatal, Message: SanitizeMessage(message)}
}

// IsSuccess reports whether s counts toward completion.
func (s Status) IsSuccess() bool {
	return s.Kind == KindSuccess
}

// String renders the wire form: SUCCESS_<code>, ERROR_<category>_<message>
// or FATAL_ERROR_<message>. Unknown-category errors keep the legacy
// ERROR_<message> shape.
func (s Status) String() string {
	switch s.Kind {
	case KindSuccess:
		return successPrefix + strconv.Itoa(s.Code)
	case KindError:
		msg := SanitizeMessage(s.Message)
		if s.Category == "" || s.Category == CategoryUnknown {
			return errorPrefix + msg
		}
		return errorPrefix + string(s.Category) + "_" + msg
	case KindFatal:
		return fatalPrefix + SanitizeMessage(s.Message)
	default:
		return ""
	}
}

// ParseStatus decodes a status column value.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, successPrefix):
		code, err := strconv.Atoi(strings.TrimPrefix(raw, successPrefix))
		if err != nil {
			return Status{}, fmt.Errorf("%w: bad success code in %q", ErrMalformedRow, raw)
		}
		return Success(code), nil
	case strings.HasPrefix(raw, fatalPrefix):
		return Status{Kind: KindFatal, Message: strings.TrimPrefix(raw, fatalPrefix)}, nil
	case strings.HasPrefix(raw, errorPrefix):
		rest := strings.TrimPrefix(raw, errorPrefix)
		for _, cat := range []Category{CategoryHTTP, CategoryNetwork} {
			name := string(cat)
			if rest == name {
				return Status{Kind: KindError, Category: cat}, nil
			}
			if strings.HasPrefix(rest, name+"_") {
				return Status{Kind: KindError, Category: cat, Message: rest[len(name)+1:]}, nil
			}
		}
		return Status{Kind: KindError, Category: CategoryUnknown, Message: rest}, nil
	default:
		return Status{}, fmt.Errorf("%w: unrecognized status %q", ErrMalformedRow, raw)
	}
}

// SanitizeMessage keeps the first line of msg and replaces the characters
// that would break a delimited row.
func SanitizeMessage(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.ReplaceAll(msg, ",", ";")
	return strings.ReplaceAll(msg, `"`, "'")
}

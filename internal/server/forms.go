package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pulsepoint/internal/validate"
)

const maxUploadBytes = 6 << 20

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("unavailable")
)

// requestError is a failure the caller can fix; its message is shown as is.
type requestError struct {
	kind error
	msg  string
}

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == e.kind }

func badRequest(format string, args ...any) error {
	return &requestError{kind: errBadRequest, msg: fmt.Sprintf(format, args...)}
}

func unavailable(msg string) error {
	return &requestError{kind: errUnavailable, msg: msg}
}

// decodeForm parses a urlencoded or multipart body into dst and validates it.
func decodeForm(r *http.Request, dst any) error {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxUploadBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return badRequest("invalid form payload")
	}

	if err := decoder.Decode(dst, r.Form); err != nil {
		return badRequest("invalid form payload")
	}

	return validate.Struct(dst)
}

func fieldErrors(err error) map[string]string {
	return validate.FieldErrors(err)
}

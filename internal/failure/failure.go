// Package failure maps failed API calls to what the user is told and
// whether the session has to be reset.
package failure

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tgienger/tareas/internal/api"
	"github.com/tgienger/tareas/internal/session"
)

// Kind classifies a failed call
type Kind int

const (
	Unexpected Kind = iota
	Validation
	AccessDenied
	Unauthenticated
	SessionExpired
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case AccessDenied:
		return "access-denied"
	case Unauthenticated:
		return "unauthenticated"
	case SessionExpired:
		return "session-expired"
	default:
		return "unexpected"
	}
}

// StatusSessionExpired is the service's status for an expired session
const StatusSessionExpired = 419

// User-facing messages
const (
	MsgUnauthorized   = "No autorizado para realizar esta accion"
	MsgSessionExpired = "Su session expiro por inactividad, vuelva a iniciar sesion"
	MsgUnexpected     = "Error inesperado, recargue la aplicacion e intente de nuevo"
)

// Disposition is how a failure is surfaced. When ResetSession is set the
// credential and all task state are dropped once the user acknowledges it.
type Disposition struct {
	Kind         Kind
	Status       int
	Messages     []string
	ResetSession bool
}

// Text joins the messages for display
func (d Disposition) Text() string {
	return strings.Join(d.Messages, "\n")
}

// Classify maps err to a disposition. It has no side effects.
func Classify(err error) Disposition {
	if errors.Is(err, session.ErrNoCredential) {
		return Disposition{Kind: Unauthenticated, Status: http.StatusUnauthorized, Messages: []string{MsgUnauthorized}, ResetSession: true}
	}

	re, ok := api.AsRemoteError(err)
	if !ok {
		return Disposition{Kind: Unexpected, Messages: []string{MsgUnexpected}}
	}

	switch re.Status {
	case http.StatusUnprocessableEntity:
		return Disposition{Kind: Validation, Status: re.Status, Messages: validationMessages(re.Body)}
	case http.StatusForbidden:
		return Disposition{Kind: AccessDenied, Status: re.Status, Messages: []string{serverMessage(re.Body, re.Status)}}
	case http.StatusUnauthorized:
		return Disposition{Kind: Unauthenticated, Status: re.Status, Messages: []string{MsgUnauthorized}, ResetSession: true}
	case StatusSessionExpired:
		return Disposition{Kind: SessionExpired, Status: re.Status, Messages: []string{MsgSessionExpired}, ResetSession: true}
	default:
		return Disposition{Kind: Unexpected, Status: re.Status, Messages: []string{MsgUnexpected}}
	}
}

type fieldError struct {
	Msg string `json:"msg"`
}

// validationMessages extracts the field messages from a 422 payload, either
// {"errors":[{"msg":...}]} or a bare [{"msg":...}] list
func validationMessages(body []byte) []string {
	var payload struct {
		Errors []fieldError `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		return messages(payload.Errors)
	}
	var list []fieldError
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return messages(list)
	}
	return []string{serverMessage(body, http.StatusUnprocessableEntity)}
}

func messages(errs []fieldError) []string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Msg)
	}
	return msgs
}

// serverMessage returns the message the service put in body: a JSON string,
// a message/msg/error field, or the raw text
func serverMessage(body []byte, status int) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, m := range []string{obj.Message, obj.Msg, obj.Error} {
			if m != "" {
				return m
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}

package notification

import (
	"encoding/json"
	"net/http"
)

// Response is the HTTP-shaped object returned to the invoking host.
// Body is a JSON document with "message" and, on success, "messageId".
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ResponseBody is the decoded form of Response.Body.
type ResponseBody struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}

// Response body messages.
const (
	MessageSuccess      = "success"
	MessageError        = "error"
	MessageInvalidEvent = "invalid event"
)

// SuccessResponse reports a send accepted by the provider. An empty
// messageID omits the field.
func SuccessResponse(messageID string) Response {
	return newResponse(http.StatusOK, ResponseBody{Message: MessageSuccess, MessageID: messageID})
}

// ErrorResponse reports a send the provider rejected. It carries no detail.
func ErrorResponse() Response {
	return newResponse(http.StatusInternalServerError, ResponseBody{Message: MessageError})
}

// InvalidEventResponse reports an event that could not be addressed.
func InvalidEventResponse() Response {
	return newResponse(http.StatusBadRequest, ResponseBody{Message: MessageInvalidEvent})
}

// DecodeBody parses the JSON body of r.
func (r Response) DecodeBody() (ResponseBody, error) {
	var body ResponseBody
	err := json.Unmarshal([]byte(r.Body), &body)
	return body, err
}

func newResponse(status int, body ResponseBody) Response {
	b, _ := json.Marshal(body)
	return Response{StatusCode: status, Body: string(b)}
}

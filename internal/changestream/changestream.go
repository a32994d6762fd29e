// Package changestream decodes DynamoDB stream events and extracts the
// recipient identity carried in a record's new image.
package changestream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Attribute names read from the new image.
const (
	AttrName  = "Name"
	AttrEmail = "Email"
)

// Recipient is the person a notification is addressed to.
type Recipient struct {
	Name  string
	Email string
}

// MalformedEventError is returned when an event lacks the records or
// attributes needed to address a notification.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed change event: %s: %s", e.Field, e.Reason)
}

// Decode parses the JSON wire form of a DynamoDB stream event.
func Decode(raw []byte) (events.DynamoDBEvent, error) {
	var event events.DynamoDBEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return events.DynamoDBEvent{}, fmt.Errorf("decoding change event: %w", err)
	}
	return event, nil
}

// ExtractRecipient reads Name and Email from the first record's new image.
// Records after the first are never inspected.
func ExtractRecipient(event events.DynamoDBEvent) (Recipient, error) {
	if len(event.Records) == 0 {
		return Recipient{}, &MalformedEventError{Field: "Records", Reason: "event has no records"}
	}

	image := event.Records[0].Change.NewImage
	if len(image) == 0 {
		return Recipient{}, &MalformedEventError{Field: "NewImage", Reason: "record has no new image"}
	}

	name, err := stringAttr(image, AttrName)
	if err != nil {
		return Recipient{}, err
	}
	email, err := stringAttr(image, AttrEmail)
	if err != nil {
		return Recipient{}, err
	}
	if strings.TrimSpace(email) == "" {
		return Recipient{}, &MalformedEventError{Field: AttrEmail, Reason: "value is empty"}
	}

	return Recipient{Name: name, Email: email}, nil
}

// IgnoredRecords returns the number of records that arrived alongside the
// first one and will not be processed.
func IgnoredRecords(event events.DynamoDBEvent) int {
	if len(event.Records) <= 1 {
		return 0
	}
	return len(event.Records) - 1
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, key string) (string, error) {
	av, ok := image[key]
	if !ok {
		return "", &MalformedEventError{Field: key, Reason: "attribute is missing"}
	}
	// String() panics on non-string attributes.
	if av.DataType() != events.DataTypeString {
		return "", &MalformedEventError{Field: key, Reason: "attribute is not a string"}
	}
	return av.String(), nil
}

// Package notify decodes S3 event notification messages
package notify

import (
	"encoding/json"
	"net/url"

	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/validate"
)

// SourceS3 is the eventSource of object store notifications
const SourceS3 = "aws:s3"

// Message is the notification envelope
type Message struct {
	Records []Record `json:"Records" validate:"required"`
}

// Record is one change record
type Record struct {
	EventSource string `json:"eventSource"`
	EventName   string `json:"eventName"`
	EventTime   string `json:"eventTime"`
	AWSRegion   string `json:"awsRegion"`
	S3          Entity `json:"s3"`
}

// Entity names the bucket and object a record refers to
type Entity struct {
	Bucket Bucket `json:"bucket"`
	Object Object `json:"object"`
}

// Bucket is the notification's bucket block
type Bucket struct {
	Name string `json:"name" validate:"required"`
}

// Object is the notification's object block; Key is still form-encoded
type Object struct {
	Key  string `json:"key" validate:"required"`
	Size int64  `json:"size"`
	ETag string `json:"eTag"`
}

// Parse decodes msg; a body that is not JSON or lacks Records is a validation error
func Parse(msg []byte) ([]Record, error) {
	var m Message
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "notification is not a JSON object")
	}
	if err := validate.Struct(m); err != nil {
		return nil, err
	}
	return m.Records, nil
}

// IsObjectCreated reports whether the record comes from the object store
func (r Record) IsObjectCreated() bool { return r.EventSource == SourceS3 }

// Key returns the decoded object key
func (r Record) Key() (string, error) {
	k, err := url.QueryUnescape(r.S3.Object.Key)
	if err != nil {
		return "", perr.WithField(perr.Wrap(err, perr.ErrorCodeValidation, "object key is not form-encoded"), "s3.object.key")
	}
	return k, nil
}

// Check validates the fields an object record needs before it can be fetched
func (r Record) Check() error {
	return validate.Struct(r.S3)
}

package core

import (
	"io"
	"sync"

	"gwi.com/chat-backend/internal/utils"
)

// Attachment is an uploaded file. The underlying stream is closed at most once.
type Attachment struct {
	File     io.ReadCloser
	Filename string

	closeOnce sync.Once
}

func (a *Attachment) Close() error {
	if a == nil || a.File == nil {
		return nil
	}
	var err error
	a.closeOnce.Do(func() { err = a.File.Close() })
	return err
}

// EncodeAttachment reads the whole attachment and returns it as an image data URI.
// A missing or empty attachment yields "". The stream is closed on every path.
func EncodeAttachment(att *Attachment) (string, error) {
	if att == nil || att.File == nil {
		return "", nil
	}
	defer att.Close()

	content, err := io.ReadAll(att.File)
	if err != nil {
		return "", &AttachmentReadError{Err: err}
	}
	if len(content) == 0 {
		return "", nil
	}
	return utils.FormatImageDataURI(content, utils.ImageSubtype(att.Filename)), nil
}

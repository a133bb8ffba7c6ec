package core

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAttachment(t *testing.T) {
	content := []byte("not really a png")
	r := &trackingReader{data: content}

	ref, err := EncodeAttachment(&Attachment{File: r, Filename: "photo.png"})
	require.NoError(t, err)

	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(content), ref)
	assert.Equal(t, 1, r.closed)
}

func TestEncodeAttachment_NoExtension(t *testing.T) {
	ref, err := EncodeAttachment(&Attachment{File: &trackingReader{data: []byte("hi")}, Filename: "photo"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/;base64,aGk=", ref)
}

func TestEncodeAttachment_Absent(t *testing.T) {
	ref, err := EncodeAttachment(nil)
	require.NoError(t, err)
	assert.Empty(t, ref)

	ref, err = EncodeAttachment(&Attachment{Filename: "photo.png"})
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestEncodeAttachment_EmptyFile(t *testing.T) {
	r := &trackingReader{}
	ref, err := EncodeAttachment(&Attachment{File: r, Filename: "photo.png"})
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Equal(t, 1, r.closed)
}

func TestEncodeAttachment_ReadFailure(t *testing.T) {
	r := &trackingReader{data: []byte("partial"), readErr: errors.New("connection reset")}

	ref, err := EncodeAttachment(&Attachment{File: r, Filename: "photo.png"})
	assert.Empty(t, ref)

	var readErr *AttachmentReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "Failed to process file: connection reset", err.Error())
	assert.Equal(t, 1, r.closed)
}

func TestAttachment_CloseOnce(t *testing.T) {
	r := &trackingReader{data: []byte("x")}
	att := &Attachment{File: r, Filename: "a.gif"}

	_, err := EncodeAttachment(att)
	require.NoError(t, err)
	require.NoError(t, att.Close())
	assert.Equal(t, 1, r.closed)

	var nilAtt *Attachment
	assert.NoError(t, nilAtt.Close())
}

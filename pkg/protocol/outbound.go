package protocol

import (
	"encoding/json"
	"errors"
)

// TypingCommand is the literal general-chat typing ping. It is not JSON.
const TypingCommand = "/typing"

// UploadsPrefix is where the server serves uploaded files from
const UploadsPrefix = "/uploads/"

// OutboundFrame is one frame the client sends. Every variant is a text frame.
type OutboundFrame interface {
	Encode() ([]byte, error)
	Name() string
}

// PlainChat is a general chat message, sent as bare text
type PlainChat struct {
	Text string
}

// TypingPing tells the server the user is typing in the general chat
type TypingPing struct{}

// PrivateChat is a message addressed to one recipient
type PrivateChat struct {
	Recipient string
	Content   string
}

// FileNotice announces an uploaded file. An empty Recipient means the general chat.
type FileNotice struct {
	Recipient string
	Filename  string
	Path      string
}

var (
	errEmptyText      = errors.New("empty message text")
	errEmptyRecipient = errors.New("private message without recipient")
	errEmptyFilename  = errors.New("file notice without filename")
)

func (f PlainChat) Encode() ([]byte, error) {
	if f.Text == "" {
		return nil, errEmptyText
	}
	return []byte(f.Text), nil
}

func (TypingPing) Encode() ([]byte, error) {
	return []byte(TypingCommand), nil
}

type privateWire struct {
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

func (f PrivateChat) Encode() ([]byte, error) {
	if f.Recipient == "" {
		return nil, errEmptyRecipient
	}
	if f.Content == "" {
		return nil, errEmptyText
	}
	return json.Marshal(privateWire{Type: TypePrivate, Recipient: f.Recipient, Content: f.Content})
}

type fileWire struct {
	Type     string  `json:"type"`
	Receiver *string `json:"receiver"`
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
}

func (f FileNotice) Encode() ([]byte, error) {
	if f.Filename == "" {
		return nil, errEmptyFilename
	}
	w := fileWire{Type: TypeFile, Filename: f.Filename, Path: f.Path}
	if f.Recipient != "" {
		r := f.Recipient
		w.Receiver = &r
	}
	if w.Path == "" {
		w.Path = UploadPath(f.Filename)
	}
	return json.Marshal(w)
}

func (PlainChat) Name() string   { return "plain_chat" }
func (TypingPing) Name() string  { return "typing_ping" }
func (PrivateChat) Name() string { return "private_chat" }
func (FileNotice) Name() string  { return "file_notice" }

// UploadPath returns the served path for an uploaded filename
func UploadPath(filename string) string {
	return UploadsPrefix + filename
}

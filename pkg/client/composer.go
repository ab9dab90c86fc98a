package client

import (
	"strings"

	"github.com/aeolun/chatsync/pkg/protocol"
)

// ComposeMessage turns user text into the frame for the active target:
// bare text for the general chat, a tagged private payload otherwise.
func ComposeMessage(active ChatTarget, text string) (protocol.OutboundFrame, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &PreconditionError{Op: "send message", Reason: "message is empty"}
	}
	if active.IsGeneral() {
		return protocol.PlainChat{Text: text}, nil
	}
	return protocol.PrivateChat{Recipient: string(active), Content: text}, nil
}

// ComposeFile announces an uploaded file in the active target
func ComposeFile(active ChatTarget, filename string) (protocol.OutboundFrame, error) {
	if filename == "" {
		return nil, &PreconditionError{Op: "send file", Reason: "filename is empty"}
	}
	return protocol.FileNotice{
		Recipient: string(active),
		Filename:  filename,
		Path:      protocol.UploadPath(filename),
	}, nil
}

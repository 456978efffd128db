package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"vetchat/domain/event"
	"vetchat/infrastructure/dto"
	"vetchat/projection"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

var errQuit = errors.New("quit")

// session keeps the local inbox in line with what the server pushes.
type session struct {
	mu      sync.Mutex
	ws      *websocket.Conn
	inbox   *projection.Inbox
	printer *printer
	nextID  int
}

func newSession(userID string, ws *websocket.Conn, printer *printer) *session {
	return &session{ws: ws, inbox: projection.NewInbox(userID), printer: printer}
}

func (s *session) receive() error {
	for {
		var frame dto.Frame
		if err := s.ws.ReadJSON(&frame); err != nil {
			return err
		}
		s.handle(frame)
	}
}

func (s *session) handle(frame dto.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Type {
	case dto.FrameNewMessage, dto.FrameMessagesRead:
		evt, err := dto.ToEvent(frame)
		if err != nil {
			s.printer.failure(err.Error())
			return
		}
		s.inbox.Consume(evt)
		s.printer.event(evt)
	case dto.FrameAck:
		s.printer.ack(frame)
	case dto.FrameError:
		s.printer.failure(frame.Error.Message)
	case dto.FrameConnected:
		var connected dto.ConnectedPayload
		if err := frame.Decode(&connected); err == nil {
			s.printer.info(fmt.Sprintf(">>> Connected as %s (connection %s)", connected.UserID, connected.ConnectionID))
		}
	}
}

func (s *session) prompt(ctx context.Context, scanner *bufio.Scanner) error {
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/inbox" {
			s.mu.Lock()
			s.printer.inbox(s.inbox)
			s.mu.Unlock()
			continue
		}
		s.nextID++
		frame, err := parseLine(line, fmt.Sprintf("cli-%d", s.nextID))
		if errors.Is(err, errQuit) {
			return errQuit
		}
		if err != nil {
			s.printer.failure(err.Error())
			continue
		}
		if err = s.ws.WriteJSON(frame); err != nil {
			return err
		}
	}
	// stdin closed
	return io.EOF
}

// parseLine turns one command line into the frame to send.
func parseLine(line, requestID string) (dto.Frame, error) {
	switch {
	case line == "/quit":
		return dto.Frame{}, errQuit
	case strings.HasPrefix(line, "/read "):
		conversationID := strings.TrimSpace(strings.TrimPrefix(line, "/read "))
		frame, err := dto.WithPayload(dto.FrameMarkAsRead, dto.MarkAsReadPayload{ConversationID: conversationID})
		frame.RequestID = requestID
		return frame, err
	case strings.HasPrefix(line, "@"):
		recipient, content, found := strings.Cut(line[1:], " ")
		content = strings.TrimSpace(content)
		if !found || recipient == "" || content == "" {
			return dto.Frame{}, fmt.Errorf("usage: @recipient message")
		}
		frame, err := dto.WithPayload(dto.FrameSendMessage, dto.SendMessagePayload{RecipientID: recipient, Content: content})
		frame.RequestID = requestID
		return frame, err
	default:
		return dto.Frame{}, fmt.Errorf("unknown command %q", line)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, errQuit) || errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

type printer struct {
	out     io.Writer
	colours bool
}

func newPrinter(out io.Writer, colours bool) *printer {
	return &printer{out: out, colours: colours}
}

func (p *printer) render(style color.Style, text string) string {
	if !p.colours {
		return text
	}
	return style.Render(text)
}

func (p *printer) event(e event.Event) {
	switch evt := e.(type) {
	case event.NewMessage:
		author := evt.Sender.DisplayName
		if author == "" {
			author = evt.Message.SenderID
		}
		_, _ = fmt.Fprintf(p.out, "[%s] %s: %s %s\n",
			evt.Message.CreatedAt.Local().Format("15:04:05"),
			p.render(color.New(color.FgCyan, color.OpBold), author),
			evt.Message.Content,
			p.render(color.New(color.FgGray), "("+evt.Message.ConversationID+")"))
	case event.MessagesRead:
		p.info(fmt.Sprintf("%s read %d message(s) in %s", evt.ReaderID, evt.Count, evt.ConversationID))
	}
}

func (p *printer) ack(frame dto.Frame) {
	switch {
	case frame.Success != nil && !*frame.Success && frame.Error != nil:
		p.failure(frame.Error.Message)
	case frame.Message != nil:
		p.info("sent in " + frame.Message.ConversationID)
	case frame.Count != nil:
		p.info(fmt.Sprintf("%d message(s) marked as read", *frame.Count))
	}
}

func (p *printer) inbox(inbox *projection.Inbox) {
	if len(inbox.Conversations) == 0 {
		p.info("no conversation yet")
		return
	}
	for _, summary := range inbox.Conversations {
		preview := ""
		if summary.Conversation.LastMessage != nil {
			preview = summary.Conversation.LastMessage.Content
		}
		name := summary.Counterpart.DisplayName
		if name == "" {
			name = summary.Counterpart.ID
		}
		_, _ = fmt.Fprintf(p.out, "%s %-20s %3d unread  %s\n",
			summary.Conversation.ID, name, summary.UnreadCount, preview)
	}
	p.info(fmt.Sprintf("%d unread in total", inbox.Unread()))
}

func (p *printer) info(text string) {
	_, _ = fmt.Fprintln(p.out, p.render(color.New(color.FgGreen), text))
}

func (p *printer) failure(text string) {
	_, _ = fmt.Fprintln(p.out, p.render(color.New(color.FgRed), "error: "+text))
}

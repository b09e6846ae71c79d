package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"geminichat/internal/attachment"
	"geminichat/internal/request"

	"github.com/google/uuid"
)

var (
	ErrBusy            = errors.New("a request is already in flight")
	ErrEmptySubmission = errors.New("nothing to send")
	ErrNotSending      = errors.New("no request in flight")
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type State int

const (
	Idle State = iota
	Sending
)

func (s State) String() string {
	if s == Sending {
		return "sending"
	}
	return "idle"
}

// AttachmentRef is what the transcript keeps of a sent file.
type AttachmentRef struct {
	Name     string
	MimeType string
}

type Turn struct {
	ID         string
	Role       Role
	Text       string
	Attachment *AttachmentRef
	CreatedAt  time.Time
	// Greeting marks the seeded opening turn, which is not a reply.
	Greeting bool
}

// Session owns the transcript, the pending attachment slot and the
// Idle/Sending state. At most one request cycle is outstanding at a time.
type Session struct {
	mu      sync.Mutex
	turns   []Turn
	state   State
	pending *attachment.Pending
	now     func() time.Time
}

// NewSession starts a transcript, seeded with a bot greeting when greeting is
// non-empty.
func NewSession(greeting string) *Session {
	s := &Session{now: time.Now}
	if greeting != "" {
		t := s.newTurn(RoleBot, greeting, nil)
		t.Greeting = true
		s.turns = append(s.turns, t)
	}
	return s
}

func (s *Session) newTurn(role Role, text string, ref *AttachmentRef) Turn {
	return Turn{
		ID:         uuid.NewString(),
		Role:       role,
		Text:       text,
		Attachment: ref,
		CreatedAt:  s.now(),
	}
}

// Attach validates p and holds it as the pending attachment, replacing any
// previous one. On error the slot is left unchanged.
func (s *Session) Attach(p attachment.Pending) error {
	if err := attachment.Validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Sending {
		return ErrBusy
	}
	s.pending = &p
	return nil
}

func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Pending returns a copy of the held attachment metadata, if any.
func (s *Session) Pending() (attachment.Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return attachment.Pending{}, false
	}
	return *s.pending, true
}

// Submit appends the user turn, consumes the pending attachment and enters
// Sending. The returned parts are the request for this turn.
func (s *Session) Submit(text string) ([]request.Part, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Sending {
		return nil, ErrBusy
	}
	if text == "" && s.pending == nil {
		return nil, ErrEmptySubmission
	}

	var enc *attachment.Encoded
	var ref *AttachmentRef
	if s.pending != nil {
		e, err := attachment.Encode(*s.pending)
		if err != nil {
			s.pending = nil
			return nil, err
		}
		enc = &e
		ref = &AttachmentRef{Name: e.Name, MimeType: e.MimeType}
	}

	parts := request.Build(text, enc)
	s.turns = append(s.turns, s.newTurn(RoleUser, request.DisplayText(text), ref))
	s.pending = nil
	s.state = Sending
	return parts, nil
}

// Resolve appends the bot reply and returns to Idle.
func (s *Session) Resolve(reply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Sending {
		return ErrNotSending
	}
	s.turns = append(s.turns, s.newTurn(RoleBot, reply, nil))
	s.state = Idle
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastReply returns the text of the most recent resolved reply. The greeting
// does not count.
func (s *Session) LastReply() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleBot && !s.turns[i].Greeting {
			return s.turns[i].Text, true
		}
	}
	return "", false
}

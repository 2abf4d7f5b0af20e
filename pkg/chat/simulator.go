package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmasure/pkg/domain"
)

var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrOrderNotAllowed     = errors.New("orders are only placed by pharmacists on the upstream channel")
	ErrOrderFieldsRequired = errors.New("item and quantity are required")
	ErrChannelLocked       = errors.New("channel cannot be changed for this role")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrClosed              = errors.New("chat closed")
)

const (
	upstreamGreeting   = "Secure Channel Established. Encryption: AES-256."
	downstreamGreeting = "Patient Inquiry Channel Active."

	subscriberBuffer = 64
)

// Config sets the simulated partner latency.
type Config struct {
	ReplyDelay time.Duration
	OrderDelay time.Duration
}

func DefaultConfig() Config {
	return Config{ReplyDelay: 1500 * time.Millisecond, OrderDelay: 2500 * time.Millisecond}
}

// EventType distinguishes stream events.
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
	EventActive  EventType = "active"
)

// Event is pushed to subscribers whenever the conversation changes.
type Event struct {
	Type    EventType           `json:"type"`
	Channel domain.Channel      `json:"channel,omitempty"`
	Message *domain.ChatMessage `json:"message,omitempty"`
	Typing  bool                `json:"typing"`
	Partner string              `json:"partner,omitempty"`
}

// Simulator is a scripted two-channel chat for one signed-in user.
// Partner replies are delivered on timers and land on the channel they were
// scheduled for, whatever channel is active by then.
type Simulator struct {
	role domain.Role
	cfg  Config
	now  func() time.Time
	// orderNumber returns a value in [1000, 9999].
	orderNumber func() int

	mu       sync.Mutex
	active   domain.Channel
	channels map[domain.Channel][]domain.ChatMessage
	pending  int
	closed   bool
	subs     map[chan Event]struct{}

	wg sync.WaitGroup
}

func NewSimulator(role domain.Role, cfg Config) *Simulator {
	s := &Simulator{
		role:        role,
		cfg:         cfg,
		now:         time.Now,
		orderNumber: func() int { return 1000 + rand.IntN(9000) },
		active:      domain.ChannelUpstream,
		channels:    make(map[domain.Channel][]domain.ChatMessage, 2),
		subs:        make(map[chan Event]struct{}),
	}
	s.channels[domain.ChannelUpstream] = []domain.ChatMessage{s.message(upstreamGreeting, domain.SenderSystem)}
	s.channels[domain.ChannelDownstream] = []domain.ChatMessage{s.message(downstreamGreeting, domain.SenderSystem)}
	return s
}

func (s *Simulator) message(text string, sender domain.Sender) domain.ChatMessage {
	return domain.ChatMessage{ID: uuid.NewString(), Text: text, Sender: sender, Timestamp: s.now()}
}

// resolve maps a requested channel onto the one that stores it for this role.
func (s *Simulator) resolve(ch domain.Channel) (domain.Channel, error) {
	if s.role != domain.RolePharmacist {
		return domain.ChannelUpstream, nil
	}
	if ch == "" {
		return s.active, nil
	}
	if _, ok := domain.ParseChannel(string(ch)); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return ch, nil
}

func (s *Simulator) Active() domain.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Partner names the counterpart on the active channel.
func (s *Simulator) Partner() string {
	return Partner(s.role, s.Active())
}

// SetActive switches the visible channel. Only pharmacists have two channels.
func (s *Simulator) SetActive(ch domain.Channel) error {
	if s.role != domain.RolePharmacist {
		return ErrChannelLocked
	}
	if _, ok := domain.ParseChannel(string(ch)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	s.mu.Lock()
	s.active = ch
	s.broadcast(Event{Type: EventActive, Channel: ch, Partner: Partner(s.role, ch)})
	s.mu.Unlock()
	return nil
}

// Toggle flips between upstream and downstream.
func (s *Simulator) Toggle() (domain.Channel, error) {
	next := domain.ChannelDownstream
	if s.Active() == domain.ChannelDownstream {
		next = domain.ChannelUpstream
	}
	if err := s.SetActive(next); err != nil {
		return "", err
	}
	return next, nil
}

// Messages returns the transcript of a channel, oldest first.
func (s *Simulator) Messages(ch domain.Channel) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.resolve(ch)
	if err != nil {
		return nil, err
	}
	return s.channels[ch], nil
}

// Typing reports whether any partner reply is still pending.
func (s *Simulator) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

// SendMessage appends the user's text and schedules the partner reply.
func (s *Simulator) SendMessage(ch domain.Channel, text string) (domain.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ChatMessage{}, ErrClosed
	}
	ch, err := s.resolve(ch)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := s.message(text, domain.SenderUser)
	s.appendLocked(ch, msg)
	s.scheduleLocked(ch, s.cfg.ReplyDelay, Reply(s.role, ch, text))
	return msg, nil
}

// PlaceOrder sends a purchase order upstream and schedules its confirmation.
func (s *Simulator) PlaceOrder(item, quantity string) (domain.ChatMessage, error) {
	if s.role != domain.RolePharmacist {
		return domain.ChatMessage{}, ErrOrderNotAllowed
	}
	item = strings.TrimSpace(item)
	quantity = strings.TrimSpace(quantity)
	if item == "" || quantity == "" {
		return domain.ChatMessage{}, ErrOrderFieldsRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ChatMessage{}, ErrClosed
	}
	if s.active != domain.ChannelUpstream {
		return domain.ChatMessage{}, ErrOrderNotAllowed
	}
	msg := s.message(fmt.Sprintf("PURCHASE ORDER REQUEST\nItem: %s\nQuantity: %s units\nPriority: Standard", item, quantity), domain.SenderUser)
	s.appendLocked(domain.ChannelUpstream, msg)
	confirmation := fmt.Sprintf("Order #%d Confirmed. %s units of %s allocated from Factory Warehouse. Dispatch scheduled within 24 hours.", s.orderNumber(), quantity, item)
	s.scheduleLocked(domain.ChannelUpstream, s.cfg.OrderDelay, confirmation)
	return msg, nil
}

func (s *Simulator) appendLocked(ch domain.Channel, msg domain.ChatMessage) {
	cur := s.channels[ch]
	next := make([]domain.ChatMessage, len(cur), len(cur)+1)
	copy(next, cur)
	s.channels[ch] = append(next, msg)
	s.broadcast(Event{Type: EventMessage, Channel: ch, Message: &msg})
}

// scheduleLocked binds ch now so the reply lands where the user sent from.
func (s *Simulator) scheduleLocked(ch domain.Channel, delay time.Duration, text string) {
	s.pending++
	s.wg.Add(1)
	s.broadcast(Event{Type: EventTyping, Channel: ch, Typing: true})
	time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pending--
		s.appendLocked(ch, s.message(text, domain.SenderPartner))
		s.broadcast(Event{Type: EventTyping, Channel: ch, Typing: s.pending > 0})
	})
}

// Subscribe streams events until cancel is called or the simulator closes.
// Slow subscribers miss events rather than stall the chat.
func (s *Simulator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

func (s *Simulator) broadcast(ev Event) {
	for sub := range s.subs {
		select {
		case sub <- ev:
		default:
			slog.Warn("chat subscriber lagging, event dropped", "type", ev.Type)
		}
	}
}

// Close waits for scheduled replies, then ends all subscriptions.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub)
	}
	s.mu.Unlock()
}

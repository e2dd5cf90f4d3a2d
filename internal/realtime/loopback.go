package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// LoopbackBus 인프로세스 실시간 버스. 레디스 없이 여러 클라이언트를
// 한 프로세스 안에서 연결한다 (테스트, 오프라인 데모).
// 전달 규칙은 레디스 구현과 같다: change-feed는 발행자 포함 전원,
// broadcast는 발행자 제외 전원.
type LoopbackBus struct {
	mu   sync.Mutex
	subs map[string][]*loopbackSub // sessionID -> 구독 목록
}

// NewLoopbackBus 루프백 버스 생성
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{subs: make(map[string][]*loopbackSub)}
}

// Client 버스에 붙는 클라이언트 생성
func (b *LoopbackBus) Client(clientID string) *LoopbackClient {
	return &LoopbackClient{bus: b, clientID: clientID}
}

// Fail 세션의 모든 구독에 에러를 주입한다 (재연결 경로 테스트용)
func (b *LoopbackBus) Fail(sessionID string, err error) {
	b.mu.Lock()
	subs := append([]*loopbackSub(nil), b.subs[sessionID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.errs <- err:
		default:
		}
	}
}

func (b *LoopbackBus) publishChange(sessionID string, ev ChangeEvent) {
	b.mu.Lock()
	subs := append([]*loopbackSub(nil), b.subs[sessionID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.changes <- ev:
		default:
		}
	}
}

func (b *LoopbackBus) publishEvent(sessionID string, env Envelope) {
	b.mu.Lock()
	subs := append([]*loopbackSub(nil), b.subs[sessionID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.ownerID == env.SenderID {
			continue
		}
		select {
		case sub.events <- env:
		default:
		}
	}
}

func (b *LoopbackBus) remove(target *loopbackSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.sessionID]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.sessionID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// LoopbackClient Publisher와 Subscriber를 모두 구현한다
type LoopbackClient struct {
	bus      *LoopbackBus
	clientID string
}

// ClientID 발신자 식별자
func (c *LoopbackClient) ClientID() string {
	return c.clientID
}

// PublishChange change-feed 이벤트 발행 (발행자 자신에게도 전달)
func (c *LoopbackClient) PublishChange(_ context.Context, sessionID string, ev ChangeEvent) error {
	c.bus.publishChange(sessionID, ev)
	return nil
}

// PublishEvent broadcast 이벤트 발행 (발행자 제외)
func (c *LoopbackClient) PublishEvent(_ context.Context, sessionID string, typ EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.bus.publishEvent(sessionID, Envelope{
		Type:      typ,
		SessionID: sessionID,
		SenderID:  c.clientID,
		Payload:   raw,
	})
	return nil
}

// Subscribe 세션 채널 구독
func (c *LoopbackClient) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	sub := &loopbackSub{
		bus:       c.bus,
		sessionID: sessionID,
		ownerID:   c.clientID,
		changes:   make(chan ChangeEvent, 256),
		events:    make(chan Envelope, 256),
		errs:      make(chan error, 2),
	}

	c.bus.mu.Lock()
	c.bus.subs[sessionID] = append(c.bus.subs[sessionID], sub)
	c.bus.mu.Unlock()

	return sub, nil
}

type loopbackSub struct {
	bus       *LoopbackBus
	sessionID string
	ownerID   string
	changes   chan ChangeEvent
	events    chan Envelope
	errs      chan error
	once      sync.Once
}

func (s *loopbackSub) Changes() <-chan ChangeEvent { return s.changes }
func (s *loopbackSub) Events() <-chan Envelope     { return s.events }
func (s *loopbackSub) Errors() <-chan error        { return s.errs }

func (s *loopbackSub) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher 실시간 발행 측 계약. 레디스 클라이언트와 테스트용 루프백이 구현한다.
type Publisher interface {
	ClientID() string
	PublishChange(ctx context.Context, sessionID string, ev ChangeEvent) error
	PublishEvent(ctx context.Context, sessionID string, typ EventType, payload any) error
}

// Subscription 구독 중인 세션 채널 한 쌍
type Subscription interface {
	Changes() <-chan ChangeEvent
	Events() <-chan Envelope
	Errors() <-chan error
	Close()
}

// Subscriber 실시간 구독 측 계약
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

// Client 레디스 pub/sub 기반 실시간 클라이언트
type Client struct {
	rdb      *redis.Client
	clientID string
	log      zerolog.Logger
}

// NewClient 레디스 연결 수립 및 ping 확인
func NewClient(addr, password string, db int, log zerolog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  -1, // pub/sub은 블로킹 수신
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", addr).Msg("realtime connected")
	return &Client{
		rdb:      rdb,
		clientID: uuid.NewString(),
		log:      log,
	}, nil
}

// ClientID 이 클라이언트의 발신자 식별자 (broadcast 자기 제외용)
func (c *Client) ClientID() string {
	return c.clientID
}

// PublishChange change-feed 행 이벤트 발행
func (c *Client) PublishChange(ctx context.Context, sessionID string, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, FeedTopic(sessionID), data).Err()
}

// PublishEvent broadcast 이벤트 발행. SenderID가 봉투에 실려
// 수신측에서 자기 자신 이벤트를 걸러낸다.
func (c *Client) PublishEvent(ctx context.Context, sessionID string, typ EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      typ,
		SessionID: sessionID,
		SenderID:  c.clientID,
		Payload:   raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, EventTopic(sessionID), data).Err()
}

// Subscribe 세션의 feed/broadcast 토픽 구독. 반환된 Subscription은
// 세션 전환이나 종료 시 반드시 Close해야 리스너가 누수되지 않는다.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	feedPS := c.rdb.Subscribe(ctx, FeedTopic(sessionID))
	if _, err := feedPS.Receive(ctx); err != nil {
		_ = feedPS.Close()
		return nil, err
	}

	eventPS := c.rdb.Subscribe(ctx, EventTopic(sessionID))
	if _, err := eventPS.Receive(ctx); err != nil {
		_ = feedPS.Close()
		_ = eventPS.Close()
		return nil, err
	}

	sub := &redisSubscription{
		feedPS:   feedPS,
		eventPS:  eventPS,
		clientID: c.clientID,
		changes:  make(chan ChangeEvent, 256),
		events:   make(chan Envelope, 256),
		errs:     make(chan error, 2),
		log:      c.log,
	}
	go sub.readFeed(ctx)
	go sub.readEvents(ctx)
	return sub, nil
}

// Close 레디스 연결 종료
func (c *Client) Close() error {
	return c.rdb.Close()
}

type redisSubscription struct {
	feedPS   *redis.PubSub
	eventPS  *redis.PubSub
	clientID string
	changes  chan ChangeEvent
	events   chan Envelope
	errs     chan error
	once     sync.Once
	log      zerolog.Logger
}

func (s *redisSubscription) Changes() <-chan ChangeEvent { return s.changes }
func (s *redisSubscription) Events() <-chan Envelope     { return s.events }
func (s *redisSubscription) Errors() <-chan error        { return s.errs }

// Close 양쪽 토픽 구독 해제 (멱등)
func (s *redisSubscription) Close() {
	s.once.Do(func() {
		_ = s.feedPS.Close()
		_ = s.eventPS.Close()
	})
}

func (s *redisSubscription) readFeed(ctx context.Context) {
	for {
		msg, err := s.feedPS.ReceiveMessage(ctx)
		if err != nil {
			s.pushErr(err)
			return
		}

		var ev ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.log.Warn().Err(err).Msg("feed message decode failed")
			continue
		}
		select {
		case s.changes <- ev:
		default:
			s.log.Warn().Str("table", ev.Table).Msg("feed buffer full, dropping event")
		}
	}
}

func (s *redisSubscription) readEvents(ctx context.Context) {
	for {
		msg, err := s.eventPS.ReceiveMessage(ctx)
		if err != nil {
			s.pushErr(err)
			return
		}

		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			s.log.Warn().Err(err).Msg("broadcast message decode failed")
			continue
		}
		// 자기 자신이 보낸 broadcast는 이미 낙관적으로 적용했다
		if env.SenderID == s.clientID {
			continue
		}
		select {
		case s.events <- env:
		default:
			s.log.Warn().Str("type", string(env.Type)).Msg("broadcast buffer full, dropping event")
		}
	}
}

func (s *redisSubscription) pushErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"vtt-engine/internal/model"
	"vtt-engine/internal/vtterr"
)

// CreateHandout 핸드아웃 생성 (GM 전용). kind에 따라 본문/이미지 중 하나만 받는다
func (s *SessionService) CreateHandout(ctx context.Context, title, kind, content string) (*model.Handout, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, vtterr.Validation("not in a session")
	}
	if !u.IsGM {
		return nil, vtterr.Permission("only the GM can manage handouts")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, vtterr.Validation("handout title is required")
	}
	if content == "" {
		return nil, vtterr.Validation("handout content is required")
	}

	h := &model.Handout{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Title:     title,
		Kind:      kind,
		SortOrder: len(s.stores.Session.Handouts()),
	}
	switch kind {
	case model.HandoutText:
		h.Body = &content
	case model.HandoutImage:
		h.ImageURL = &content
	default:
		return nil, vtterr.Validation("unknown handout kind %q", kind)
	}

	if err := s.repo.CreateHandout(ctx, h); err != nil {
		return nil, err
	}
	s.stores.Session.UpsertHandout(*h)
	return h, nil
}

// UpdateHandout 핸드아웃 부분 갱신 (GM 전용)
func (s *SessionService) UpdateHandout(ctx context.Context, handoutID string, fields map[string]any) (*model.Handout, error) {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return nil, vtterr.Validation("not in a session")
	}
	if !u.IsGM {
		return nil, vtterr.Permission("only the GM can manage handouts")
	}
	h, err := s.repo.UpdateHandoutFields(ctx, sessionID, handoutID, fields)
	if err != nil {
		return nil, err
	}
	s.stores.Session.UpsertHandout(*h)
	return h, nil
}

// DeleteHandout 핸드아웃 삭제 (GM 전용)
func (s *SessionService) DeleteHandout(ctx context.Context, handoutID string) error {
	u := s.stores.Session.CurrentUser()
	sessionID := s.stores.Session.SessionID()
	if u == nil || sessionID == "" {
		return vtterr.Validation("not in a session")
	}
	if !u.IsGM {
		return vtterr.Permission("only the GM can manage handouts")
	}
	if err := s.repo.DeleteHandout(ctx, sessionID, handoutID); err != nil {
		return err
	}
	s.stores.Session.RemoveHandout(handoutID)
	return nil
}

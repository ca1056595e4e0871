package dialog

import (
	"context"
	"errors"
	"strings"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

type phoneInput struct {
	Phone string `validate:"required,numeric,len=10"`
}

// validPhone returns the 10-digit phone in the message, ignoring inner spaces.
func (e *Engine) validPhone(t *turn) (string, bool) {
	digits, _ := t.cmd.Digits()
	if err := e.validate.Struct(phoneInput{Phone: digits}); err != nil {
		return "", false
	}
	return digits, true
}

func (e *Engine) startRegistration(_ context.Context, t *turn) string {
	t.session.ClearTransient()
	t.session.Draft = &model.RegistrationDraft{}
	t.session.State = model.StateRegisteringName
	return msgAskName
}

func (e *Engine) captureName(_ context.Context, t *turn) string {
	name := strings.TrimSpace(t.cmd.Clean)
	if name == "" {
		return msgAskName
	}
	if t.session.Draft == nil {
		t.session.Draft = &model.RegistrationDraft{}
	}
	t.session.Draft.Name = name
	t.session.State = model.StateRegisteringPhone
	return msgAskPhone
}

func (e *Engine) capturePhone(_ context.Context, t *turn) string {
	phone, ok := e.validPhone(t)
	if !ok {
		return msgBadPhone
	}
	if t.session.Draft == nil {
		t.session.Draft = &model.RegistrationDraft{}
	}
	t.session.Draft.Phone = phone
	t.session.State = model.StateRegisteringAddress
	return msgAskAddress
}

func (e *Engine) captureAddress(ctx context.Context, t *turn) string {
	s := t.session
	address := strings.TrimSpace(t.cmd.Clean)
	if address == "" {
		return msgAskAddress
	}
	if s.Draft == nil || s.Draft.Name == "" || s.Draft.Phone == "" {
		return e.resetAfterAccountFailure(ctx, t, "registro", errors.New("registration draft incomplete"), msgRegistrationFailed)
	}

	user := model.User{Phone: s.Draft.Phone, Name: s.Draft.Name, Address: address}
	if err := e.users.SaveUser(ctx, user); err != nil {
		return e.resetAfterAccountFailure(ctx, t, "registro", err, msgRegistrationFailed)
	}

	s.Profile = &user
	s.Draft = nil
	s.State = model.StateAuthenticated
	logx.Info().Str("sender_id", s.SenderID).Str("phone", user.Phone).Msg("user registered")
	return "✨ Registro completado, " + user.Name + ".\n\n" + msgCatalogHint
}

func (e *Engine) startLogin(_ context.Context, t *turn) string {
	t.session.ClearTransient()
	t.session.State = model.StateLoggingIn
	return msgAskLoginPhone
}

func (e *Engine) captureLoginPhone(ctx context.Context, t *turn) string {
	phone, ok := e.validPhone(t)
	if !ok {
		return msgBadPhone
	}

	user, err := e.users.GetUser(ctx, phone)
	if errors.Is(err, errx.ErrNotFound) {
		return msgUnknownPhone
	}
	if err != nil {
		return e.resetAfterAccountFailure(ctx, t, "login", err, msgLoginFailed)
	}

	s := t.session
	s.Profile = user
	s.State = model.StateAuthenticated
	logx.Info().Str("sender_id", s.SenderID).Str("phone", phone).Msg("user logged in")
	return "✨ Bienvenido de nuevo, " + user.Name + ".\n\n" + msgCatalogHint
}

// resetAfterAccountFailure puts the session back at start so the sender retries cleanly.
func (e *Engine) resetAfterAccountFailure(ctx context.Context, t *turn, where string, err error, reply string) string {
	logx.Error().Err(err).Str("sender_id", t.session.SenderID).Str("step", where).Msg("account step failed")
	e.events.Error(ctx, t.session.SenderID, where, err)
	t.session.ClearTransient()
	t.session.State = model.StateStart
	return reply
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"relay/server/internal/ids"
	"relay/server/internal/invite"
)

// --- OTM -------------------------------------------------------------

type otmCreateRequest struct {
	Ciphertext string `json:"ciphertext"`
}

type otmCreateResponse struct {
	Id string `json:"id"`
}

func (s *Server) handleOTMCreate(c echo.Context) error {
	var req otmCreateRequest
	if err := c.Bind(&req); err != nil {
		return bindErr(err)
	}
	if req.Ciphertext == "" {
		return errMalformedRequest("ciphertext_required")
	}
	id := s.otm.Put(req.Ciphertext)
	return c.JSON(http.StatusCreated, otmCreateResponse{Id: id})
}

type otmGetResponse struct {
	Ciphertext string `json:"ciphertext"`
}

func (s *Server) handleOTMGet(c echo.Context) error {
	id := trimmedParam(c, "id")
	if !ids.Valid(id) {
		return errMalformedRequest("invalid_id")
	}
	ciphertext, ok := s.otm.Take(id)
	if !ok {
		return errUsed
	}
	return c.JSON(http.StatusOK, otmGetResponse{Ciphertext: ciphertext})
}

// --- File --------------------------------------------------------------

type fileCreateResponse struct {
	Id string `json:"id"`
}

func (s *Server) handleFileCreate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	id := s.files.Put(body)
	return c.JSON(http.StatusCreated, fileCreateResponse{Id: id})
}

func (s *Server) handleFileGet(c echo.Context) error {
	id := trimmedParam(c, "id")
	if !ids.Valid(id) {
		return errMalformedRequest("invalid_id")
	}
	data, ok := s.files.Take(id)
	if !ok {
		return errUsed
	}
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

// --- Chat invite ---------------------------------------------------------

type inviteCreateRequest struct {
	InviteId        string `json:"inviteId"`
	PublicKeyBundle string `json:"publicKeyBundle"`
	ExpiresAt       int64  `json:"expiresAt,omitempty"`
}

type inviteCreateResponse struct {
	Success  bool   `json:"success"`
	InviteId string `json:"inviteId"`
}

func (s *Server) handleInviteCreate(c echo.Context) error {
	var req inviteCreateRequest
	if err := c.Bind(&req); err != nil {
		return bindErr(err)
	}
	if req.InviteId == "" || req.PublicKeyBundle == "" {
		return errMalformedRequest("inviteId_and_publicKeyBundle_required")
	}
	if err := s.invites.Create(req.InviteId, req.PublicKeyBundle, req.ExpiresAt); err != nil {
		if errors.Is(err, invite.ErrConflict) {
			return errConflict("invite_exists")
		}
		return err
	}
	return c.JSON(http.StatusCreated, inviteCreateResponse{Success: true, InviteId: req.InviteId})
}

type inviteGetResponse struct {
	InviteId        string  `json:"inviteId"`
	PublicKeyBundle string  `json:"publicKeyBundle"`
	Claimed         bool    `json:"claimed"`
	ClaimerBundle   *string `json:"claimerBundle"`
}

func (s *Server) handleInviteGet(c echo.Context) error {
	id := trimmedParam(c, "id")
	view, err := s.invites.Get(id)
	if err != nil {
		if errors.Is(err, invite.ErrNotFound) {
			return errNotFound("invite_not_found")
		}
		return err
	}
	resp := inviteGetResponse{InviteId: id, PublicKeyBundle: view.CreatorBundle, Claimed: view.Claimed}
	if view.Claimed {
		resp.ClaimerBundle = &view.ClaimerBundle
	}
	return c.JSON(http.StatusOK, resp)
}

type inviteClaimRequest struct {
	ClaimerBundle string `json:"claimerBundle"`
}

type inviteClaimResponse struct {
	Success       bool   `json:"success"`
	CreatorBundle string `json:"creatorBundle"`
}

func (s *Server) handleInviteClaim(c echo.Context) error {
	id := trimmedParam(c, "id")
	var req inviteClaimRequest
	if err := c.Bind(&req); err != nil {
		return bindErr(err)
	}
	if req.ClaimerBundle == "" {
		return errMalformedRequest("claimerBundle_required")
	}
	creatorBundle, err := s.invites.Claim(id, req.ClaimerBundle)
	if err != nil {
		switch {
		case errors.Is(err, invite.ErrNotFound):
			return errNotFound("invite_not_found")
		case errors.Is(err, invite.ErrAlreadyClaimed):
			return errConflict("already_claimed")
		default:
			return err
		}
	}
	return c.JSON(http.StatusOK, inviteClaimResponse{Success: true, CreatorBundle: creatorBundle})
}

// --- Chat messages -------------------------------------------------------

type chatMessageRequest struct {
	To               string `json:"to"`
	From             string `json:"from"`
	EncryptedMessage string `json:"encryptedMessage"`
	MessageId        string `json:"messageId"`
}

type chatMessageResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}

func (s *Server) handleChatMessage(c echo.Context) error {
	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return bindErr(err)
	}
	if req.To == "" || req.EncryptedMessage == "" || req.MessageId == "" {
		return errMalformedRequest("to_encryptedMessage_messageId_required")
	}
	duplicate := s.mailbox.Enqueue(req.To, req.From, req.EncryptedMessage, req.MessageId)
	if duplicate {
		return c.JSON(http.StatusOK, chatMessageResponse{Success: true, Duplicate: true})
	}
	return c.JSON(http.StatusCreated, chatMessageResponse{Success: true})
}

type chatMessageView struct {
	Id      string `json:"id"`
	From    string `json:"from"`
	Payload string `json:"payload"`
}

type chatMessagesGetResponse struct {
	Messages []chatMessageView `json:"messages"`
}

func (s *Server) handleChatMessagesGet(c echo.Context) error {
	fp := trimmedParam(c, "fp")
	msgs := s.mailbox.Fetch(fp)
	out := make([]chatMessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessageView{Id: m.Id, From: m.From, Payload: m.Payload})
	}
	return c.JSON(http.StatusOK, chatMessagesGetResponse{Messages: out})
}

type chatMessagesAckRequest struct {
	Fingerprint string   `json:"fingerprint"`
	MessageIds  []string `json:"messageIds"`
}

type chatMessagesAckResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleChatMessagesAck(c echo.Context) error {
	var req chatMessagesAckRequest
	if err := c.Bind(&req); err != nil {
		return bindErr(err)
	}
	if req.Fingerprint == "" {
		return errMalformedRequest("fingerprint_required")
	}
	s.mailbox.Ack(req.Fingerprint, req.MessageIds)
	return c.JSON(http.StatusOK, chatMessagesAckResponse{Success: true})
}

func bindErr(err error) error {
	if isBodyTooLarge(err) {
		// Let this reach withBody unmasked so it can hijack-and-close
		// instead of answering with a normal 400 body.
		return err
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return errMalformedRequest("malformed_json")
	}
	return errMalformedRequest("malformed_request")
}
